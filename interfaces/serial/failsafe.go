// interfaces/serial/failsafe.go
package serial

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FailSafe wraps a Port with open-on-demand and retry: on any I/O error the
// underlying port is released and re-opened, up to RetryCount attempts with
// RetryInterval between them. When every attempt fails the aggregate error is
// surfaced.
type FailSafe struct {
	descriptor    Descriptor
	configuration Configuration

	retryCount    int
	retryInterval time.Duration

	open func() (*Port, error)
	port *Port
	log  *logrus.Entry
}

func NewFailSafe(descriptor Descriptor, configuration Configuration, retryCount int, retryInterval time.Duration) *FailSafe {
	if retryCount <= 0 {
		retryCount = 3
	}
	if retryInterval <= 0 {
		retryInterval = 100 * time.Millisecond
	}
	f := &FailSafe{
		descriptor:    descriptor,
		configuration: configuration,
		retryCount:    retryCount,
		retryInterval: retryInterval,
		log:           logrus.WithField("adapter", descriptor.String()),
	}
	f.open = func() (*Port, error) {
		return Open(f.descriptor, f.configuration)
	}
	return f
}

func (f *FailSafe) portGet() (*Port, error) {
	if f.port == nil {
		port, err := f.open()
		if err != nil {
			return nil, errors.Wrap(err, "open")
		}
		f.port = port
	}
	return f.port, nil
}

func (f *FailSafe) portRelease() {
	if f.port != nil {
		_ = f.port.Close()
		f.port = nil
	}
}

func (f *FailSafe) retry(op string, fn func(port *Port) error) error {
	var attempts MultiError
	for attempt := 0; attempt < f.retryCount; attempt++ {
		port, err := f.portGet()
		if err == nil {
			err = fn(port)
			if err == nil {
				return nil
			}
		}
		f.log.WithField("op", op).Warnf("attempt %d/%d: %v", attempt+1, f.retryCount, err)
		attempts = append(attempts, err)
		f.portRelease()
		time.Sleep(f.retryInterval)
	}
	return errors.Wrap(attempts, op)
}

func (f *FailSafe) Purge() error {
	return f.retry("purge", func(port *Port) error {
		return port.Purge()
	})
}

func (f *FailSafe) Write(data []byte) error {
	return f.retry("write", func(port *Port) error {
		return port.Write(data)
	})
}

func (f *FailSafe) Read() ([]byte, error) {
	var result []byte
	err := f.retry("read", func(port *Port) error {
		data, err := port.Read()
		if err != nil {
			return err
		}
		result = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases the underlying port if open.
func (f *FailSafe) Close() {
	f.portRelease()
}
