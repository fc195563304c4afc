package ds18x20

import (
	"math"
	"testing"
)

func TestFromU16(t *testing.T) {
	cases := []struct {
		name       string
		value      uint16
		sensorType SensorType
		resetCount uint8
		celsius    float64
		valid      bool
	}{
		{"empty", 0b0000_0000_0000_0000, TypeEmpty, 0, 0, false},
		{"invalid", 0b0111_0111_1101_0000, TypeInvalid, 3, 0, false},
		{"s max", 0b1000_0111_1101_0000, TypeS, 0, 125.0, true},
		{"b 85", 0b1100_0101_0101_0000, TypeB, 0, 85.0, true},
		{"s 25.0625", 0b1001_0001_1001_0001, TypeS, 1, 25.0625, true},
		{"b 10.125", 0b1101_0000_1010_0010, TypeB, 1, 10.125, true},
		{"s 0.5", 0b1010_0000_0000_1000, TypeS, 2, 0.5, true},
		{"b zero", 0b1110_0000_0000_0000, TypeB, 2, 0.0, true},
		{"s -0.5", 0b1011_1111_1111_1000, TypeS, 3, -0.5, true},
		{"b -10.125", 0b1111_1111_0101_1110, TypeB, 3, -10.125, true},
		{"s -25.0625", 0b1000_1110_0110_1111, TypeS, 0, -25.0625, true},
		{"b min", 0b1100_1100_1001_0000, TypeB, 0, -55.0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			state := FromU16(c.value)
			if state.Type != c.sensorType {
				t.Fatalf("type = %v, want %v", state.Type, c.sensorType)
			}
			if state.ResetCount != c.resetCount {
				t.Fatalf("reset count = %d, want %d", state.ResetCount, c.resetCount)
			}
			if state.TemperatureValid != c.valid {
				t.Fatalf("temperature valid = %v, want %v", state.TemperatureValid, c.valid)
			}
			if c.valid && math.Abs(state.Temperature.Celsius()-c.celsius) > 1e-9 {
				t.Fatalf("temperature = %v°C, want %v°C", state.Temperature.Celsius(), c.celsius)
			}
		})
	}
}
