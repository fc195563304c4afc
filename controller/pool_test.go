package controller_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"homectl-go/async"
	"homectl-go/controller"
	"homectl-go/services/houseblocks"
	"homectl-go/services/houseblocks/avr1/devices/relay14"
	"homectl-go/signals"
	"homectl-go/statusbus"
)

// simAdapter emulates one AVR-v1 slave that accepts every application
// request with an empty reply, recording request payloads.
type simAdapter struct {
	mu              sync.Mutex
	address         houseblocks.Address
	applicationMode bool
	pending         []byte
	appRequests     []string
}

func (s *simAdapter) Purge() error { return nil }

func (s *simAdapter) Write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame, err := houseblocks.ParseFrame(data)
	if err != nil || frame.Address != s.address {
		return nil
	}
	reply := func(payload houseblocks.Payload) {
		s.pending = append(s.pending,
			houseblocks.EncodeFrame(frame.ServiceMode, s.address, payload)...)
	}

	if frame.ServiceMode {
		if s.applicationMode {
			return nil
		}
		switch frame.Payload.String() {
		case "":
			reply(nil)
		case "C":
			reply(houseblocks.Payload("0101"))
		case "R":
			s.applicationMode = true
		}
		return nil
	}

	if !s.applicationMode {
		return nil
	}
	if frame.Payload.String() == "!" {
		s.applicationMode = false
		return nil
	}
	s.appRequests = append(s.appRequests, frame.Payload.String())
	reply(nil)
	return nil
}

func (s *simAdapter) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.pending = nil
	return pending, nil
}

func (s *simAdapter) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.appRequests...)
}

// switchDevice is a soft logic device with one boolean state source.
type switchDevice struct {
	source       *signals.StateSource[bool]
	sourcesWaker *async.Waker
}

func newSwitchDevice() *switchDevice {
	return &switchDevice{
		source:       signals.NewStateSource[bool](nil),
		sourcesWaker: async.NewWaker(),
	}
}

func (d *switchDevice) Class() string                         { return "soft/switch" }
func (d *switchDevice) TargetsChangedWaker() *async.Waker     { return nil }
func (d *switchDevice) SourcesChangedWaker() *async.Waker     { return d.sourcesWaker }
func (d *switchDevice) Signals() map[signals.ID]signals.Signal {
	return map[signals.ID]signals.Signal{0: d.source}
}
func (d *switchDevice) Run(ctx context.Context) { <-ctx.Done() }

func (d *switchDevice) set(value bool) {
	if d.source.Set(value) {
		d.sourcesWaker.Wake()
	}
}

type switchBuilder struct{ device *switchDevice }

func (b switchBuilder) Build(in controller.BuildInput) (controller.BuildOutput, error) {
	return controller.BuildOutput{Logic: b.device}, nil
}

func TestPoolEndToEnd(t *testing.T) {
	address, err := houseblocks.NewAddress("0006", "72031321")
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	adapter := &simAdapter{address: address}
	master := houseblocks.NewMaster(adapter)
	status := statusbus.New(8)

	pool := controller.NewPool(master, status)
	if err := pool.AddDevice(controller.DeviceConfig{Name: "relays", Class: "relay14", Serial: "72031321"}); err != nil {
		t.Fatalf("add relay: %v", err)
	}

	// A soft switch feeding relay output 3.
	sw := newSwitchDevice()
	controller.RegisterBuilder("test_switch", switchBuilder{device: sw})
	if err := pool.AddDevice(controller.DeviceConfig{Name: "switch", Class: "test_switch", Serial: "00000000"}); err != nil {
		t.Fatalf("add switch: %v", err)
	}

	pool.Connect(controller.ConnectionConfig{
		SourceDevice: "switch", SourceSignal: 0,
		TargetDevice: "relays", TargetSignal: int(relay14.SignalOutput(3)),
	})

	stateSub := status.Subscribe(statusbus.Topic{"device", "relays", "state"})
	defer stateSub.Unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := pool.Run(ctx); err != nil {
			t.Errorf("pool run: %v", err)
		}
		close(done)
	}()

	// Status reaches running.
	deadline := time.After(10 * time.Second)
	for {
		var state string
		select {
		case msg := <-stateSub.C():
			state, _ = msg.Payload.(string)
		case <-deadline:
			t.Fatal("relay runner never reached running")
		}
		if state == "running" {
			break
		}
	}

	// Flip the switch; the relay board receives a poll with output 3 set.
	sw.set(true)

	deadline = time.After(5 * time.Second)
	for {
		found := false
		for _, request := range adapter.requests() {
			if strings.HasPrefix(request, "H") && request == "H0008" {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("relay write not observed, requests: %v", adapter.requests())
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool did not shut down")
	}
}
