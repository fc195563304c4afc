// services/houseblocks/common.go
package houseblocks

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	DeviceTypeLen = 4
	SerialLen     = 8

	// MaxPayloadLen bounds the hex-ASCII-encoded frame body.
	MaxPayloadLen = 255
)

// DeviceType is the 4-character ASCII device type code, e.g. "0003".
type DeviceType [DeviceTypeLen]byte

func NewDeviceType(s string) (DeviceType, error) {
	var dt DeviceType
	if err := checkAddressText(s, DeviceTypeLen); err != nil {
		return dt, errors.Wrap(err, "device type")
	}
	copy(dt[:], s)
	return dt, nil
}

// NewDeviceTypeOrdinal renders a numeric type code, e.g. 3 -> "0003".
func NewDeviceTypeOrdinal(ordinal int) (DeviceType, error) {
	if ordinal < 0 || ordinal > 9999 {
		return DeviceType{}, errors.Errorf("device type ordinal out of range: %d", ordinal)
	}
	return NewDeviceType(fmt.Sprintf("%04d", ordinal))
}

func (dt DeviceType) String() string { return string(dt[:]) }

// MustDeviceTypeOrdinal is NewDeviceTypeOrdinal for static device class
// registration; it panics on an out-of-range ordinal.
func MustDeviceTypeOrdinal(ordinal int) DeviceType {
	dt, err := NewDeviceTypeOrdinal(ordinal)
	if err != nil {
		panic(err)
	}
	return dt
}

// Serial is the 8-character ASCII device serial.
type Serial [SerialLen]byte

func NewSerial(s string) (Serial, error) {
	var sn Serial
	if err := checkAddressText(s, SerialLen); err != nil {
		return sn, errors.Wrap(err, "serial")
	}
	copy(sn[:], s)
	return sn, nil
}

func (s Serial) String() string { return string(s[:]) }

// Address identifies one device on the bus. Comparable; equality is bytewise.
type Address struct {
	DeviceType DeviceType
	Serial     Serial
}

func NewAddress(deviceType, serial string) (Address, error) {
	dt, err := NewDeviceType(deviceType)
	if err != nil {
		return Address{}, err
	}
	sn, err := NewSerial(serial)
	if err != nil {
		return Address{}, err
	}
	return Address{DeviceType: dt, Serial: sn}, nil
}

func (a Address) String() string {
	return a.DeviceType.String() + "/" + a.Serial.String()
}

// BroadcastAddress is the all-wildcard destination used for discovery.
func BroadcastAddress() Address {
	var a Address
	for i := range a.DeviceType {
		a.DeviceType[i] = '?'
	}
	for i := range a.Serial {
		a.Serial[i] = '?'
	}
	return a
}

func checkAddressText(s string, length int) error {
	if len(s) != length {
		return errors.Errorf("want %d characters, got %d", length, len(s))
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return errors.Errorf("non-printable character at %d", i)
		}
	}
	return nil
}

// Payload is the hex-ASCII-encoded body of one frame.
type Payload []byte

func NewPayload(data []byte) (Payload, error) {
	if len(data) > MaxPayloadLen {
		return nil, errors.Errorf("payload too long: %d > %d", len(data), MaxPayloadLen)
	}
	return Payload(data), nil
}

func (p Payload) String() string { return string(p) }
