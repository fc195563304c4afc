// services/houseblocks/avr1/ds18x20/ds18x20.go

// Package ds18x20 decodes the packed DS18x20 sensor word the AVR-v1 devices
// report: top 2 bits sensor type, next 2 bits reset counter, low 12 bits
// signed temperature in 1/16 °C with the sign carried in bit 11.
package ds18x20

import (
	"fmt"

	"homectl-go/types"
)

type SensorType uint8

const (
	TypeEmpty SensorType = iota
	TypeInvalid
	TypeS
	TypeB
)

func (t SensorType) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeInvalid:
		return "invalid"
	case TypeS:
		return "S"
	case TypeB:
		return "B"
	}
	return "unknown"
}

// State is one decoded sensor reading. Comparable so it can ride in the
// property cells directly.
type State struct {
	Type             SensorType
	ResetCount       uint8
	Temperature      types.Temperature
	TemperatureValid bool
}

func (s State) String() string {
	if !s.TemperatureValid {
		return fmt.Sprintf("%s (resets: %d)", s.Type, s.ResetCount)
	}
	return fmt.Sprintf("%s %s (resets: %d)", s.Type, s.Temperature, s.ResetCount)
}

// FromU16 unpacks the wire word. Every 16-bit pattern is decodable.
func FromU16(value uint16) State {
	state := State{
		Type:       SensorType((value >> 14) & 0b11),
		ResetCount: uint8((value >> 12) & 0b11),
	}

	switch state.Type {
	case TypeS, TypeB:
		// Bits 15:11 of the raw reading are all sign; transmission keeps
		// only bit 11, so extend it back.
		raw := value & 0x0FFF
		if raw&0x0800 != 0 {
			raw |= 0xF000
		}
		celsius := float64(int16(raw)) / 16.0
		temperature, err := types.TemperatureFromCelsius(celsius)
		if err == nil {
			state.Temperature = temperature
			state.TemperatureValid = true
		}
	}
	return state
}
