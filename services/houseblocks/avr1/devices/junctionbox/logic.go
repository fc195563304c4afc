// services/houseblocks/avr1/devices/junctionbox/logic.go
package junctionbox

import (
	"context"
	"time"

	"homectl-go/async"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/signals"
	"homectl-go/types"
)

// Signal identifiers.
const (
	SignalKeys signals.ID = iota
	SignalTemperature
	SignalBuzzer
	SignalLedFirst
)

// SignalLed is the identifier of LED index.
func SignalLed(index int) signals.ID {
	return SignalLedFirst + signals.ID(index)
}

// Logic bridges the junction box property cells into the signal graph:
// keys and temperature flow out as sources, LEDs and buzzer flow in as
// targets.
type Logic struct {
	device *Device
	runner *avr1.Runner

	keys        *signals.EventSource[KeyEvent]
	temperature *signals.StateSource[types.Temperature]

	ledTargets   [LedCount]*signals.StateTargetLast[bool]
	buzzerTarget *signals.EventTarget[time.Duration]

	targetsWaker *async.Waker
	sourcesWaker *async.Waker
}

func NewLogic(device *Device, runner *avr1.Runner) *Logic {
	l := &Logic{
		device:       device,
		runner:       runner,
		keys:         signals.NewEventSource[KeyEvent](),
		temperature:  signals.NewStateSource[types.Temperature](nil),
		buzzerTarget: signals.NewEventTarget[time.Duration](),
		targetsWaker: async.NewWaker(),
		sourcesWaker: async.NewWaker(),
	}
	for index := range l.ledTargets {
		l.ledTargets[index] = signals.NewStateTargetLast[bool]()
	}
	return l
}

func (l *Logic) Class() string { return "houseblocks/avr1/junction_box_minimal_v1" }

func (l *Logic) TargetsChangedWaker() *async.Waker { return l.targetsWaker }

func (l *Logic) SourcesChangedWaker() *async.Waker { return l.sourcesWaker }

func (l *Logic) Signals() map[signals.ID]signals.Signal {
	m := map[signals.ID]signals.Signal{
		SignalKeys:        l.keys,
		SignalTemperature: l.temperature,
		SignalBuzzer:      l.buzzerTarget,
	}
	for index, target := range l.ledTargets {
		m[SignalLed(index)] = target
	}
	return m
}

// Run moves data between the property cells and the signal endpoints until
// cancelled.
func (l *Logic) Run(ctx context.Context) {
	keys := l.device.Keys()
	sensor := l.device.Sensor()
	leds := l.device.Leds()
	buzzer := l.device.Buzzer()

	for {
		select {
		case <-ctx.Done():
			return

		case <-l.runner.InChanged().C():
			changed := false

			if _, events, ok := keys.TakePending(); ok {
				for _, event := range events {
					changed = l.keys.Push(event) || changed
				}
			}
			if state, _, ok := sensor.TakePending(); ok {
				if state != nil && state.TemperatureValid {
					changed = l.temperature.Set(state.Temperature) || changed
				}
			}
			if changed {
				l.sourcesWaker.Wake()
			}

		case <-l.targetsWaker.C():
			var values LedValues
			for index, target := range l.ledTargets {
				if value := target.Last(); value != nil {
					values[index] = *value
				}
			}
			wake := leds.Set(values)

			for _, duration := range l.buzzerTarget.TakeAll() {
				wake = buzzer.Push(duration) || wake
			}
			if wake {
				l.runner.WakePoll()
			}
		}
	}
}
