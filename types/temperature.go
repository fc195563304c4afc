// types/temperature.go
package types

import (
	"fmt"
	"math"
)

// Temperature is an absolute temperature stored in Kelvin. The zero value is
// absolute zero, which is never a legal reading; construct through the unit
// helpers.
type Temperature struct {
	kelvin float64
}

func TemperatureFromKelvin(k float64) (Temperature, error) {
	if math.IsNaN(k) || math.IsInf(k, 0) || k < 0 {
		return Temperature{}, fmt.Errorf("invalid temperature: %v K", k)
	}
	return Temperature{kelvin: k}, nil
}

func TemperatureFromCelsius(c float64) (Temperature, error) {
	return TemperatureFromKelvin(c + 273.15)
}

func (t Temperature) Kelvin() float64  { return t.kelvin }
func (t Temperature) Celsius() float64 { return t.kelvin - 273.15 }

func (t Temperature) String() string {
	return fmt.Sprintf("%.4f°C", t.Celsius())
}
