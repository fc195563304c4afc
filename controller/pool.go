// controller/pool.go
package controller

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"homectl-go/services/houseblocks"
	"homectl-go/services/houseblocks/avr1"
	"homectl-go/signals"
	"homectl-go/statusbus"
)

type poolEntry struct {
	runner *avr1.Runner
	logic  LogicDevice
}

// Pool owns every device runner plus the signal exchanger. One cancellation
// context fans out to all of them; a panic inside any sub-task takes the
// process down, which is intended for a device controller.
type Pool struct {
	master *houseblocks.Master
	status *statusbus.Bus

	devices     map[string]poolEntry
	connections []signals.Connection

	log *logrus.Entry
}

func NewPool(master *houseblocks.Master, status *statusbus.Bus) *Pool {
	return &Pool{
		master:  master,
		status:  status,
		devices: map[string]poolEntry{},
		log:     logrus.WithField("component", "controller.pool"),
	}
}

// AddDevice builds one device from its registered class builder.
func (p *Pool) AddDevice(cfg DeviceConfig) error {
	if _, exists := p.devices[cfg.Name]; exists {
		return errors.Errorf("duplicate device name %q", cfg.Name)
	}
	builder, ok := findBuilder(cfg.Class)
	if !ok {
		return errors.Errorf("unknown device class %q", cfg.Class)
	}
	serial, err := houseblocks.NewSerial(cfg.Serial)
	if err != nil {
		return errors.Wrapf(err, "device %q", cfg.Name)
	}

	out, err := builder.Build(BuildInput{Master: p.master, Serial: serial, Params: cfg.Params})
	if err != nil {
		return errors.Wrapf(err, "build %q", cfg.Name)
	}
	p.devices[cfg.Name] = poolEntry{runner: out.Runner, logic: out.Logic}
	return nil
}

// Connect appends one signal graph connection; the wiring is checked when
// Run builds the exchanger.
func (p *Pool) Connect(cfg ConnectionConfig) {
	p.connections = append(p.connections, signals.Connection{
		SourceDevice: cfg.SourceDevice,
		SourceSignal: signals.ID(cfg.SourceSignal),
		TargetDevice: cfg.TargetDevice,
		TargetSignal: signals.ID(cfg.TargetSignal),
	})
}

// Runner exposes one device's runner, e.g. for tester binaries.
func (p *Pool) Runner(name string) (*avr1.Runner, bool) {
	entry, ok := p.devices[name]
	if !ok {
		return nil, false
	}
	return entry.runner, true
}

// Run starts the bus master, every runner and logic adapter, the signal
// exchanger and the status forwarders, then blocks until the context is
// cancelled and all of them returned.
func (p *Pool) Run(ctx context.Context) error {
	signalDevices := make(map[string]signals.Device, len(p.devices))
	for name, entry := range p.devices {
		signalDevices[name] = entry.logic
	}
	exchanger, err := signals.NewExchanger(signalDevices, p.connections)
	if err != nil {
		return errors.Wrap(err, "signal graph")
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.master.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		exchanger.Run(ctx)
	}()

	for name, entry := range p.devices {
		p.log.WithField("device", name).Infof("starting %s", entry.logic.Class())

		wg.Add(1)
		go func(entry poolEntry) {
			defer wg.Done()
			entry.logic.Run(ctx)
		}(entry)

		// Soft devices have no bus runner.
		if entry.runner == nil {
			continue
		}
		wg.Add(2)
		go func(entry poolEntry) {
			defer wg.Done()
			entry.runner.Run(ctx)
		}(entry)
		go func(name string, entry poolEntry) {
			defer wg.Done()
			p.forwardSummary(ctx, name, entry.runner)
		}(name, entry)
	}

	wg.Wait()
	return nil
}

// forwardSummary publishes runner state transitions as retained status
// messages.
func (p *Pool) forwardSummary(ctx context.Context, name string, runner *avr1.Runner) {
	summary, unsubscribe := runner.Summary().Subscribe()
	defer unsubscribe()

	topic := statusbus.Topic{"device", name, "state"}
	p.status.Publish(topic, runner.State().String(), true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-summary.C():
			p.status.Publish(topic, runner.State().String(), true)
		}
	}
}
