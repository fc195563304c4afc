// services/houseblocks/avr1/devices/junctionbox/hardware.go

// Package junctionbox implements the minimal junction box: 6 keys, 6 LEDs,
// a buzzer, and one DS18x20 temperature sensor.
package junctionbox

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"homectl-go/services/houseblocks"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/services/houseblocks/avr1/ds18x20"
	"homectl-go/services/houseblocks/avr1/property"
)

const (
	KeyCount = 6
	LedCount = 6
)

// KeysState is the current level of all keys.
type KeysState [KeyCount]bool

// KeyEvent is one observed key edge.
type KeyEvent struct {
	Index uint8
	Down  bool
}

// LedValues is the state of all LEDs.
type LedValues [LedCount]bool

var addressDeviceType = houseblocks.MustDeviceTypeOrdinal(3)

// pollDelay keeps key handling responsive without hammering the bus.
const pollDelay = 500 * time.Millisecond

// Device is the bus-side junction box implementation.
type Device struct {
	keys   *property.StateEventIn[KeysState, KeyEvent]
	leds   *property.StateOut[LedValues]
	buzzer *property.EventOutLast[time.Duration]
	sensor *property.StateEventIn[ds18x20.State, ds18x20.State]

	lastKeys   *KeysState
	lastSensor *ds18x20.State
}

func NewDevice() *Device {
	return &Device{
		keys:   property.NewStateEventIn[KeysState, KeyEvent](),
		leds:   property.NewStateOut(LedValues{}),
		buzzer: property.NewEventOutLast[time.Duration](),
		sensor: property.NewStateEventIn[ds18x20.State, ds18x20.State](),
	}
}

// User-side handles.

func (d *Device) Keys() *property.StateEventInStream[KeysState, KeyEvent] {
	return d.keys.Stream()
}

func (d *Device) Leds() *property.StateOutSink[LedValues] {
	return d.leds.Sink()
}

func (d *Device) Buzzer() *property.EventOutLastSink[time.Duration] {
	return d.buzzer.Sink()
}

func (d *Device) Sensor() *property.StateEventInStream[ds18x20.State, ds18x20.State] {
	return d.sensor.Stream()
}

func (d *Device) DeviceTypeName() string { return "JunctionBox_Minimal_v1" }

func (d *Device) AddressDeviceType() houseblocks.DeviceType { return addressDeviceType }

func (d *Device) Initialize(ctx context.Context, driver avr1.ApplicationDriver) error {
	return nil
}

func (d *Device) PollDelay() (time.Duration, bool) { return pollDelay, true }

// Poll pushes pending LED and buzzer writes and reads keys plus the
// temperature sensor in one combined transaction.
//
// Request grammar: optional 'L' + bool-array-8 (LEDs), optional 'B' + u8
// (buzzer duration, 10 ms units). Response: bool-array-8 (keys) + u16
// (DS18x20 word).
func (d *Device) Poll(ctx context.Context, driver avr1.ApplicationDriver) (bool, error) {
	ledsPending, ledsOK := d.leds.DevicePending()
	buzzerPending, buzzerOK := d.buzzer.DevicePending()

	serializer := avr1.NewSerializer()
	if ledsOK {
		serializer.PushByte('L')
		var padded [8]bool
		values := ledsPending.Value()
		copy(padded[:], values[:])
		serializer.PushBoolArray8(padded)
	}
	if buzzerOK {
		serializer.PushByte('B')
		serializer.PushU8(durationToTicks(buzzerPending.Value()))
	}
	request, err := serializer.IntoPayload()
	if err != nil {
		return false, errors.Wrap(err, "request")
	}

	response, err := driver.TransactionOutIn(ctx, request, 0)
	if err != nil {
		return false, errors.Wrap(err, "transaction")
	}

	parser := avr1.NewParser(response)
	keyBits, err := parser.ExpectBoolArray8()
	if err != nil {
		return false, errors.Wrap(err, "keys")
	}
	sensorWord, err := parser.ExpectU16()
	if err != nil {
		return false, errors.Wrap(err, "ds18x20")
	}
	if err := parser.ExpectEnd(); err != nil {
		return false, errors.Wrap(err, "response")
	}

	if ledsOK {
		ledsPending.Commit()
	}
	if buzzerOK {
		buzzerPending.Commit()
	}

	var keys KeysState
	copy(keys[:], keyBits[:KeyCount])
	inChanged := d.applyKeys(keys)

	if d.applySensor(ds18x20.FromU16(sensorWord)) {
		inChanged = true
	}
	return inChanged, nil
}

func (d *Device) applyKeys(keys KeysState) bool {
	if d.lastKeys == nil {
		d.lastKeys = &keys
		return d.keys.DeviceSetState(keys)
	}
	previous := *d.lastKeys
	if previous == keys {
		return false
	}
	d.lastKeys = &keys

	changed := false
	for index := 0; index < KeyCount; index++ {
		if previous[index] != keys[index] {
			d.keys.DeviceSet(keys, KeyEvent{Index: uint8(index), Down: keys[index]})
			changed = true
		}
	}
	return changed
}

func (d *Device) applySensor(state ds18x20.State) bool {
	if d.lastSensor != nil && *d.lastSensor == state {
		return false
	}
	d.lastSensor = &state
	return d.sensor.DeviceSet(state, state)
}

func (d *Device) Deinitialize(ctx context.Context, driver avr1.ApplicationDriver) error {
	return nil
}

func (d *Device) Reset() {
	d.lastKeys = nil
	d.lastSensor = nil
	d.keys.DeviceReset()
	d.leds.DeviceReset()
	d.buzzer.DeviceReset()
	d.sensor.DeviceReset()
}

func durationToTicks(duration time.Duration) uint8 {
	ticks := duration.Milliseconds() / 10
	if ticks < 0 {
		ticks = 0
	}
	if ticks > 255 {
		ticks = 255
	}
	return uint8(ticks)
}
