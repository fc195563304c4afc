// services/houseblocks/avr1/runner.go
package avr1

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"homectl-go/async"
	"homectl-go/services/houseblocks"
)

// Device is one AVR-v1 bus device implementation. The runner calls it from a
// single goroutine; implementations own their property cells and move data
// between them and the wire inside Poll.
type Device interface {
	DeviceTypeName() string
	AddressDeviceType() houseblocks.DeviceType

	// Initialize runs device-class specific setup once the device reached
	// application mode.
	Initialize(ctx context.Context, driver ApplicationDriver) error

	// PollDelay reports the device's preferred poll interval, if any.
	PollDelay() (time.Duration, bool)

	// Poll pushes pending out-cells and reads in-cells in device-defined
	// transactions. Reports whether any in-cell changed.
	Poll(ctx context.Context, driver ApplicationDriver) (bool, error)

	Deinitialize(ctx context.Context, driver ApplicationDriver) error

	// Reset clears internal state after the device was restarted.
	Reset()
}

// DeviceState is the runner's externally visible lifecycle state.
type DeviceState uint8

const (
	StateError DeviceState = iota
	StateInitializing
	StateRunning
)

func (s DeviceState) String() string {
	switch s {
	case StateError:
		return "error"
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	}
	return "unknown"
}

const (
	pollDelayMax      = 5 * time.Second
	errorRestartDelay = 10 * time.Second
)

// Runner drives the lifecycle of one device:
// Initializing -> Running -> (poll failure) -> Error -> restart delay -> Initializing.
type Runner struct {
	driver *Driver
	device Device

	stateMu sync.RWMutex
	state   DeviceState

	pollWaker   *async.Waker
	inWaker     *async.Waker
	summaryWake *async.Broadcast

	pollMax      time.Duration
	restartDelay time.Duration

	log *logrus.Entry
}

func NewRunner(master *houseblocks.Master, device Device, serial houseblocks.Serial) *Runner {
	address := houseblocks.Address{
		DeviceType: device.AddressDeviceType(),
		Serial:     serial,
	}
	return &Runner{
		driver:       NewDriver(master, address),
		device:       device,
		state:        StateInitializing,
		pollWaker:    async.NewWaker(),
		inWaker:      async.NewWaker(),
		summaryWake:  async.NewBroadcast(),
		pollMax:      pollDelayMax,
		restartDelay: errorRestartDelay,
		log: logrus.WithFields(logrus.Fields{
			"device": address.String(),
			"class":  device.DeviceTypeName(),
		}),
	}
}

func (r *Runner) Device() Device { return r.device }

func (r *Runner) Driver() *Driver { return r.driver }

func (r *Runner) Address() houseblocks.Address { return r.driver.Address() }

// State returns the current lifecycle state for status surfaces.
func (r *Runner) State() DeviceState {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.state
}

// Summary fans out state transitions to any number of observers.
func (r *Runner) Summary() *async.Broadcast { return r.summaryWake }

// WakePoll requests an immediate poll; called by the user side after writing
// an out-cell.
func (r *Runner) WakePoll() { r.pollWaker.Wake() }

// InChanged fires after a poll stored fresh data into any in-cell.
func (r *Runner) InChanged() *async.Waker { return r.inWaker }

func (r *Runner) setState(state DeviceState) {
	r.stateMu.Lock()
	changed := r.state != state
	r.state = state
	r.stateMu.Unlock()
	if changed {
		r.summaryWake.Wake()
	}
}

// Run drives the restart loop until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	for {
		err := r.runOnce(ctx)
		if ctx.Err() != nil {
			r.setState(StateInitializing)
			return
		}
		r.log.Errorf("device failed: %v", err)

		r.device.Reset()
		r.setState(StateError)

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.restartDelay):
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) error {
	r.setState(StateInitializing)
	r.device.Reset()

	if err := r.driver.Prepare(ctx); err != nil {
		return errors.Wrap(err, "prepare")
	}

	driver := applicationDriver{driver: r.driver}

	if err := r.device.Initialize(ctx, driver); err != nil {
		return errors.Wrap(err, "initialize")
	}

	r.setState(StateRunning)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		inChanged, err := r.device.Poll(ctx, driver)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return errors.Wrap(err, "poll")
		}
		if inChanged {
			r.inWaker.Wake()
		}

		pollDelay := r.pollMax
		if hint, ok := r.device.PollDelay(); ok && hint < pollDelay {
			pollDelay = hint
		}
		resetTimer(timer, pollDelay)

		select {
		case <-timer.C:
		case <-r.pollWaker.C():
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}

	// Best-effort finalisation on exit; the deadline keeps a dead bus from
	// stalling shutdown.
	deinitCtx, cancel := context.WithTimeout(context.Background(), 2*TimeoutDefault)
	defer cancel()
	if err := r.device.Deinitialize(deinitCtx, driver); err != nil {
		r.log.Warnf("deinitialize: %v", err)
	}

	r.device.Reset()
	return nil
}

// resetTimer safely stops, drains, and resets a timer.
func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}
