// services/houseblocks/avr1/devices/relay14/logic.go
package relay14

import (
	"context"

	"homectl-go/async"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/signals"
)

// Signal identifiers: one state target per relay output.
const (
	SignalOutputFirst signals.ID = iota
)

// SignalOutput is the identifier of relay output index.
func SignalOutput(index int) signals.ID {
	return SignalOutputFirst + signals.ID(index)
}

// Logic bridges the relay board's property cells into the signal graph.
type Logic struct {
	device *Device
	runner *avr1.Runner

	targets      [OutputCount]*signals.StateTargetLast[bool]
	targetsWaker *async.Waker
}

func NewLogic(device *Device, runner *avr1.Runner) *Logic {
	l := &Logic{
		device:       device,
		runner:       runner,
		targetsWaker: async.NewWaker(),
	}
	for index := range l.targets {
		l.targets[index] = signals.NewStateTargetLast[bool]()
	}
	return l
}

func (l *Logic) Class() string { return "houseblocks/avr1/relay14_opto_a_v1" }

func (l *Logic) TargetsChangedWaker() *async.Waker { return l.targetsWaker }

func (l *Logic) SourcesChangedWaker() *async.Waker { return nil }

func (l *Logic) Signals() map[signals.ID]signals.Signal {
	m := make(map[signals.ID]signals.Signal, OutputCount)
	for index, target := range l.targets {
		m[SignalOutput(index)] = target
	}
	return m
}

// Run translates written targets into relay output pushes until cancelled.
func (l *Logic) Run(ctx context.Context) {
	outputs := l.device.Outputs()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.targetsWaker.C():
			var values OutputValues
			for index, target := range l.targets {
				if value := target.Last(); value != nil {
					values[index] = *value
				}
			}
			if outputs.Set(values) {
				l.runner.WakePoll()
			}
		}
	}
}
