// services/houseblocks/avr1/devices/relay14/builder.go
package relay14

import (
	"homectl-go/controller"
	"homectl-go/services/houseblocks/avr1"
)

func init() { controller.RegisterBuilder("relay14", builder{}) }

type builder struct{}

func (builder) Build(in controller.BuildInput) (controller.BuildOutput, error) {
	device := NewDevice()
	runner := avr1.NewRunner(in.Master, device, in.Serial)
	return controller.BuildOutput{Runner: runner, Logic: NewLogic(device, runner)}, nil
}
