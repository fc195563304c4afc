// services/eaton/mmax/hardware.go

// Package mmax drives an Eaton PowerXL M-Max variable-frequency drive over
// Modbus-RTU. Independent of the HouseBlocks bus; it talks through its own
// RS-485 adapter.
package mmax

import (
	"encoding/binary"

	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

// Fieldbus process data registers.
const (
	regControlWord   = 2000
	regSpeedSetpoint = 2002

	regStatusWord      = 2100
	regOutputFrequency = 2102
)

// Control word bits.
const (
	controlRun     = 1 << 0
	controlReverse = 1 << 1
	controlReset   = 1 << 2
)

// Status word bits.
const (
	statusReady   = 1 << 0
	statusRunning = 1 << 1
	statusFault   = 1 << 2
	statusWarning = 1 << 3
)

// Input is the drive command: run/direction plus speed as a 0..1 ratio of
// nominal frequency.
type Input struct {
	Run     bool
	Reverse bool
	Speed   float64
}

// Status is the decoded drive state.
type Status struct {
	Ready   bool
	Running bool
	Fault   bool
	Warning bool

	// OutputFrequency in Hz.
	OutputFrequency float64
}

// Ok is the aggregate health signal exported to the graph.
func (s Status) Ok() bool {
	return s.Ready && !s.Fault
}

// Device wraps one drive endpoint.
type Device struct {
	client modbus.Client
}

func NewDevice(client modbus.Client) *Device {
	return &Device{client: client}
}

// WriteInput pushes the control word and speed setpoint.
func (d *Device) WriteInput(input Input) error {
	var control uint16
	if input.Run {
		control |= controlRun
	}
	if input.Reverse {
		control |= controlReverse
	}
	if _, err := d.client.WriteSingleRegister(regControlWord, control); err != nil {
		return errors.Wrap(err, "control word")
	}

	speed := input.Speed
	if speed < 0 {
		speed = 0
	}
	if speed > 1 {
		speed = 1
	}
	// Setpoint unit is 0.01 %.
	if _, err := d.client.WriteSingleRegister(regSpeedSetpoint, uint16(speed*10000)); err != nil {
		return errors.Wrap(err, "speed setpoint")
	}
	return nil
}

// FaultReset pulses the reset bit.
func (d *Device) FaultReset() error {
	if _, err := d.client.WriteSingleRegister(regControlWord, controlReset); err != nil {
		return errors.Wrap(err, "fault reset")
	}
	return nil
}

// ReadStatus fetches and decodes the status word and output frequency.
func (d *Device) ReadStatus() (Status, error) {
	data, err := d.client.ReadHoldingRegisters(regStatusWord, 1)
	if err != nil {
		return Status{}, errors.Wrap(err, "status word")
	}
	if len(data) != 2 {
		return Status{}, errors.Errorf("status word: %d bytes", len(data))
	}
	word := binary.BigEndian.Uint16(data)

	status := Status{
		Ready:   word&statusReady != 0,
		Running: word&statusRunning != 0,
		Fault:   word&statusFault != 0,
		Warning: word&statusWarning != 0,
	}

	data, err = d.client.ReadHoldingRegisters(regOutputFrequency, 1)
	if err != nil {
		return Status{}, errors.Wrap(err, "output frequency")
	}
	if len(data) != 2 {
		return Status{}, errors.Errorf("output frequency: %d bytes", len(data))
	}
	// Register unit is 0.01 Hz.
	status.OutputFrequency = float64(binary.BigEndian.Uint16(data)) / 100.0

	return status, nil
}
