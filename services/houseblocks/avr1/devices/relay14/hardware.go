// services/houseblocks/avr1/devices/relay14/hardware.go

// Package relay14 implements the 14-channel opto-isolated relay board.
package relay14

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"homectl-go/services/houseblocks"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/services/houseblocks/avr1/property"
)

const OutputCount = 14

// OutputValues is the state of all 14 relays.
type OutputValues [OutputCount]bool

var addressDeviceType = houseblocks.MustDeviceTypeOrdinal(6)

// Device is the bus-side relay board implementation.
type Device struct {
	outputs *property.StateOut[OutputValues]
}

func NewDevice() *Device {
	return &Device{
		outputs: property.NewStateOut(OutputValues{}),
	}
}

// Outputs returns the user-side sink for the relay states.
func (d *Device) Outputs() *property.StateOutSink[OutputValues] {
	return d.outputs.Sink()
}

func (d *Device) DeviceTypeName() string { return "Relay14_Opto_A_v1" }

func (d *Device) AddressDeviceType() houseblocks.DeviceType { return addressDeviceType }

func (d *Device) Initialize(ctx context.Context, driver avr1.ApplicationDriver) error {
	return nil
}

func (d *Device) PollDelay() (time.Duration, bool) { return 0, false }

func (d *Device) Poll(ctx context.Context, driver avr1.ApplicationDriver) (bool, error) {
	pending, ok := d.outputs.DevicePending()

	serializer := avr1.NewSerializer()
	if ok {
		serializeOutputs(serializer, pending.Value())
	}
	request, err := serializer.IntoPayload()
	if err != nil {
		return false, errors.Wrap(err, "request")
	}

	response, err := driver.TransactionOutIn(ctx, request, 0)
	if err != nil {
		return false, errors.Wrap(err, "transaction")
	}
	if err := avr1.NewParser(response).ExpectEnd(); err != nil {
		return false, errors.Wrap(err, "response")
	}

	if ok {
		pending.Commit()
	}
	return false, nil
}

func (d *Device) Deinitialize(ctx context.Context, driver avr1.ApplicationDriver) error {
	return nil
}

func (d *Device) Reset() {
	d.outputs.DeviceReset()
}

func serializeOutputs(serializer *avr1.Serializer, values OutputValues) {
	var padded [16]bool
	copy(padded[:], values[:])
	serializer.PushByte('H')
	serializer.PushBoolArray16(padded)
}
