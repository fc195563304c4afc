// interfaces/serial/port.go
package serial

import (
	"time"

	"github.com/pkg/errors"
	goserial "go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// readChunk bounds a single Read; the bus master accumulates across calls.
const readChunk = 512

// readPollTimeout keeps Read from blocking forever when the line is idle so
// the master can interleave deadline checks.
const readPollTimeout = 20 * time.Millisecond

// Port is one open USB-serial adapter. Not thread-safe.
type Port struct {
	descriptor Descriptor
	port       goserial.Port
}

// Open locates the adapter named by the descriptor and applies the
// configuration. The settings are fixed for the lifetime of the port.
func Open(descriptor Descriptor, configuration Configuration) (*Port, error) {
	path := descriptor.PortPath
	if path == "" {
		found, err := findBySerialNumber(descriptor.SerialNumber)
		if err != nil {
			return nil, err
		}
		path = found
	}

	mode := &goserial.Mode{
		BaudRate: configuration.BaudRate,
		DataBits: 8,
		Parity:   toParity(configuration.Parity),
		StopBits: toStopBits(configuration.StopBits),
	}
	port, err := goserial.Open(path, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if err := port.SetReadTimeout(readPollTimeout); err != nil {
		_ = port.Close()
		return nil, errors.Wrap(err, "set read timeout")
	}

	return &Port{descriptor: descriptor, port: port}, nil
}

func findBySerialNumber(serialNumber string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", errors.Wrap(err, "enumerate ports")
	}
	for _, p := range ports {
		if p.IsUSB && p.SerialNumber == serialNumber {
			return p.Name, nil
		}
	}
	return "", errors.Errorf("no adapter with serial number %q", serialNumber)
}

func (p *Port) Purge() error {
	if err := p.port.ResetInputBuffer(); err != nil {
		return errors.Wrap(err, "reset input buffer")
	}
	if err := p.port.ResetOutputBuffer(); err != nil {
		return errors.Wrap(err, "reset output buffer")
	}
	return nil
}

func (p *Port) Write(data []byte) error {
	for len(data) > 0 {
		n, err := p.port.Write(data)
		if err != nil {
			return errors.Wrap(err, "write")
		}
		data = data[n:]
	}
	if err := p.port.Drain(); err != nil {
		return errors.Wrap(err, "drain")
	}
	return nil
}

// Read returns whatever bytes are available within the poll timeout. An empty
// slice with nil error means the line was idle.
func (p *Port) Read() ([]byte, error) {
	buffer := make([]byte, readChunk)
	n, err := p.port.Read(buffer)
	if err != nil {
		return nil, errors.Wrap(err, "read")
	}
	return buffer[:n], nil
}

func (p *Port) Close() error {
	return p.port.Close()
}

func toParity(parity Parity) goserial.Parity {
	switch parity {
	case ParityEven:
		return goserial.EvenParity
	case ParityOdd:
		return goserial.OddParity
	default:
		return goserial.NoParity
	}
}

func toStopBits(stopBits int) goserial.StopBits {
	if stopBits == 2 {
		return goserial.TwoStopBits
	}
	return goserial.OneStopBit
}
