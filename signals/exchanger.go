// signals/exchanger.go
package signals

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"homectl-go/async"
	"homectl-go/errcode"
)

// Device is the signal surface one logic device exposes to the graph.
type Device interface {
	// TargetsChangedWaker fires after the exchanger wrote to any of the
	// device's targets. Nil when the device has no targets.
	TargetsChangedWaker() *async.Waker

	// SourcesChangedWaker is woken by the device after it wrote any of its
	// sources. Nil when the device has no sources.
	SourcesChangedWaker() *async.Waker

	// Signals lists the device's endpoints by identifier.
	Signals() map[ID]Signal
}

// Connection wires one source endpoint to one target endpoint.
type Connection struct {
	SourceDevice string
	SourceSignal ID
	TargetDevice string
	TargetSignal ID
}

type targetRef struct {
	device string
	target Target
}

type sourceKey struct {
	device string
	signal ID
}

// Exchanger owns the wiring tables, constructed once and read-only
// afterwards, and the serialised propagation loop.
type Exchanger struct {
	devices map[string]Device

	// deterministic iteration order for sources of one device
	deviceSources map[string][]sourceEntry

	wiring map[sourceKey][]targetRef

	log *logrus.Entry
}

type sourceEntry struct {
	signal ID
	source Source
}

// NewExchanger type-checks every connection and builds the wiring tables.
// Mismatches abort construction with a precise error.
func NewExchanger(devices map[string]Device, connections []Connection) (*Exchanger, error) {
	e := &Exchanger{
		devices:       devices,
		deviceSources: map[string][]sourceEntry{},
		wiring:        map[sourceKey][]targetRef{},
		log:           logrus.WithField("component", "signals.exchanger"),
	}

	eventTargetSources := map[targetRef]sourceKey{}

	for _, c := range connections {
		source, err := e.resolveSource(c.SourceDevice, c.SourceSignal)
		if err != nil {
			return nil, err
		}
		target, err := e.resolveTarget(c.TargetDevice, c.TargetSignal)
		if err != nil {
			return nil, err
		}

		if source.isEvent() != target.isEvent() {
			return nil, errors.Wrapf(errcode.TypeMismatch,
				"%s/%d -> %s/%d: cannot connect state and event endpoints",
				c.SourceDevice, c.SourceSignal, c.TargetDevice, c.TargetSignal)
		}
		if source.ValueType() != target.ValueType() {
			return nil, errors.Wrapf(errcode.TypeMismatch,
				"%s/%d -> %s/%d: source carries %s, target expects %s",
				c.SourceDevice, c.SourceSignal, c.TargetDevice, c.TargetSignal,
				source.ValueType(), target.ValueType())
		}

		ref := targetRef{device: c.TargetDevice, target: target}
		key := sourceKey{device: c.SourceDevice, signal: c.SourceSignal}

		if source.isEvent() {
			if prev, ok := eventTargetSources[ref]; ok && prev != key {
				return nil, errors.Wrapf(errcode.TypeMismatch,
					"%s/%d: event target already connected to %s/%d",
					c.TargetDevice, c.TargetSignal, prev.device, prev.signal)
			}
			eventTargetSources[ref] = key
		}

		e.wiring[key] = append(e.wiring[key], ref)
		e.noteSource(c.SourceDevice, c.SourceSignal, source)
	}

	return e, nil
}

func (e *Exchanger) resolveSource(device string, signal ID) (Source, error) {
	sig, err := e.resolveSignal(device, signal)
	if err != nil {
		return nil, err
	}
	source, ok := sig.(Source)
	if !ok {
		return nil, errors.Wrapf(errcode.TypeMismatch, "%s/%d is not a source", device, signal)
	}
	return source, nil
}

func (e *Exchanger) resolveTarget(device string, signal ID) (Target, error) {
	sig, err := e.resolveSignal(device, signal)
	if err != nil {
		return nil, err
	}
	target, ok := sig.(Target)
	if !ok {
		return nil, errors.Wrapf(errcode.TypeMismatch, "%s/%d is not a target", device, signal)
	}
	return target, nil
}

func (e *Exchanger) resolveSignal(device string, signal ID) (Signal, error) {
	dev, ok := e.devices[device]
	if !ok {
		return nil, errors.Errorf("unknown device %q", device)
	}
	sig, ok := dev.Signals()[signal]
	if !ok {
		return nil, errors.Errorf("device %q has no signal %d", device, signal)
	}
	return sig, nil
}

func (e *Exchanger) noteSource(device string, signal ID, source Source) {
	for _, entry := range e.deviceSources[device] {
		if entry.signal == signal {
			return
		}
	}
	e.deviceSources[device] = append(e.deviceSources[device], sourceEntry{signal: signal, source: source})
	sort.Slice(e.deviceSources[device], func(i, j int) bool {
		return e.deviceSources[device][i].signal < e.deviceSources[device][j].signal
	})
}

// Run propagates source changes to targets until the context is cancelled.
// Propagation is serialised: one goroutine applies all updates, so values
// reach targets in the order sources produced them.
func (e *Exchanger) Run(ctx context.Context) {
	notifications := make(chan string, len(e.devices)+1)

	for name, dev := range e.devices {
		waker := dev.SourcesChangedWaker()
		if waker == nil || len(e.deviceSources[name]) == 0 {
			continue
		}
		go func(name string, waker *async.Waker) {
			for {
				select {
				case <-ctx.Done():
					return
				case <-waker.C():
					select {
					case notifications <- name:
					case <-ctx.Done():
						return
					}
				}
			}
		}(name, waker)
	}

	// Deliver anything already queued (e.g. initial source values).
	for name := range e.deviceSources {
		e.propagate(name)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case name := <-notifications:
			e.propagate(name)
		}
	}
}

func (e *Exchanger) propagate(device string) {
	touched := map[string]struct{}{}

	for _, entry := range e.deviceSources[device] {
		values := entry.source.takePending()
		if len(values) == 0 {
			continue
		}
		for _, ref := range e.wiring[sourceKey{device: device, signal: entry.signal}] {
			ref.target.push(values)
			touched[ref.device] = struct{}{}
		}
	}

	for name := range touched {
		if waker := e.devices[name].TargetsChangedWaker(); waker != nil {
			waker.Wake()
		}
	}
}
