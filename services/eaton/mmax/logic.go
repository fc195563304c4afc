// services/eaton/mmax/logic.go
package mmax

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"homectl-go/async"
	"homectl-go/controller"
	"homectl-go/interfaces/modbusrtu"
	"homectl-go/signals"
)

// Signal identifiers.
const (
	SignalRun signals.ID = iota
	SignalReverse
	SignalSpeed
	SignalOk
)

const pollInterval = 500 * time.Millisecond

// Logic exposes the drive to the signal graph: run/reverse/speed flow in as
// targets, the aggregate health flows out as a source. The drive is polled
// from Run's own loop; there is no HouseBlocks runner behind it.
type Logic struct {
	device *Device

	run     *signals.StateTargetLast[bool]
	reverse *signals.StateTargetLast[bool]
	speed   *signals.StateTargetLast[float64]
	ok      *signals.StateSource[bool]

	targetsWaker *async.Waker
	sourcesWaker *async.Waker

	log *logrus.Entry
}

func NewLogic(device *Device) *Logic {
	return &Logic{
		device:       device,
		run:          signals.NewStateTargetLast[bool](),
		reverse:      signals.NewStateTargetLast[bool](),
		speed:        signals.NewStateTargetLast[float64](),
		ok:           signals.NewStateSource[bool](nil),
		targetsWaker: async.NewWaker(),
		sourcesWaker: async.NewWaker(),
		log:          logrus.WithField("component", "eaton.mmax"),
	}
}

func (l *Logic) Class() string { return "eaton/mmax_a" }

func (l *Logic) TargetsChangedWaker() *async.Waker { return l.targetsWaker }

func (l *Logic) SourcesChangedWaker() *async.Waker { return l.sourcesWaker }

func (l *Logic) Signals() map[signals.ID]signals.Signal {
	return map[signals.ID]signals.Signal{
		SignalRun:     l.run,
		SignalReverse: l.reverse,
		SignalSpeed:   l.speed,
		SignalOk:      l.ok,
	}
}

func (l *Logic) input() Input {
	var input Input
	if value := l.run.Last(); value != nil {
		input.Run = *value
	}
	if value := l.reverse.Last(); value != nil {
		input.Reverse = *value
	}
	if value := l.speed.Last(); value != nil {
		input.Speed = *value
	}
	return input
}

// Run polls the drive and applies target writes until cancelled.
func (l *Logic) Run(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var lastInput *Input

	step := func() {
		input := l.input()
		if lastInput == nil || *lastInput != input {
			if err := l.device.WriteInput(input); err != nil {
				l.log.Warnf("write input: %v", err)
				return
			}
			lastInput = &input
		}

		status, err := l.device.ReadStatus()
		if err != nil {
			l.log.Warnf("read status: %v", err)
			return
		}
		if l.ok.Set(status.Ok()) {
			l.sourcesWaker.Wake()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.targetsWaker.C():
			step()
		case <-ticker.C:
			step()
		}
	}
}

// Params is the builder configuration.
type Params struct {
	PortPath string `json:"port_path"`
	BaudRate int    `json:"baud_rate"`
	SlaveID  byte   `json:"slave_id"`
}

func init() { controller.RegisterBuilder("eaton_mmax", builder{}) }

type builder struct{}

func (builder) Build(in controller.BuildInput) (controller.BuildOutput, error) {
	var params Params
	if err := json.Unmarshal(in.Params, &params); err != nil {
		return controller.BuildOutput{}, err
	}
	client, err := modbusrtu.Connect(modbusrtu.Config{
		PortPath: params.PortPath,
		BaudRate: params.BaudRate,
		SlaveID:  params.SlaveID,
	})
	if err != nil {
		return controller.BuildOutput{}, err
	}
	return controller.BuildOutput{Logic: NewLogic(NewDevice(client))}, nil
}
