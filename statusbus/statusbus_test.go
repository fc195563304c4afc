package statusbus

import (
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case msg := <-sub.C():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return Message{}
	}
}

func TestPublishSubscribe(t *testing.T) {
	bus := New(4)
	sub := bus.Subscribe(Topic{"device", "a", "state"})
	defer sub.Unsubscribe()

	bus.Publish(Topic{"device", "a", "state"}, "running", false)
	if msg := recv(t, sub); msg.Payload != "running" {
		t.Fatalf("payload = %v", msg.Payload)
	}

	// Non-matching topic is not delivered.
	bus.Publish(Topic{"device", "b", "state"}, "error", false)
	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected delivery: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRetainedReplayedToLateSubscriber(t *testing.T) {
	bus := New(4)
	bus.Publish(Topic{"device", "a", "state"}, "running", true)

	sub := bus.Subscribe(Topic{"device", "a", "state"})
	defer sub.Unsubscribe()
	if msg := recv(t, sub); msg.Payload != "running" {
		t.Fatalf("retained payload = %v", msg.Payload)
	}

	// Clearing removes the retained value.
	bus.Publish(Topic{"device", "a", "state"}, nil, true)
	late := bus.Subscribe(Topic{"device", "a", "state"})
	defer late.Unsubscribe()
	select {
	case msg := <-late.C():
		t.Fatalf("unexpected replay after clear: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWildcards(t *testing.T) {
	bus := New(4)
	single := bus.Subscribe(Topic{"device", "+", "state"})
	defer single.Unsubscribe()
	multi := bus.Subscribe(Topic{"device", "#"})
	defer multi.Unsubscribe()

	bus.Publish(Topic{"device", "a", "state"}, 1, false)
	if msg := recv(t, single); msg.Payload != 1 {
		t.Fatalf("single wildcard payload = %v", msg.Payload)
	}
	if msg := recv(t, multi); msg.Payload != 1 {
		t.Fatalf("multi wildcard payload = %v", msg.Payload)
	}

	bus.Publish(Topic{"device", "a", "state", "extra"}, 2, false)
	select {
	case msg := <-single.C():
		t.Fatalf("single wildcard matched deeper topic: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
	if msg := recv(t, multi); msg.Payload != 2 {
		t.Fatalf("multi wildcard deep payload = %v", msg.Payload)
	}
}

func TestSlowConsumerDropsOldest(t *testing.T) {
	bus := New(2)
	sub := bus.Subscribe(Topic{"x"})
	defer sub.Unsubscribe()

	for i := 0; i < 5; i++ {
		bus.Publish(Topic{"x"}, i, false)
	}

	// The two newest survive.
	if msg := recv(t, sub); msg.Payload != 3 {
		t.Fatalf("first queued payload = %v", msg.Payload)
	}
	if msg := recv(t, sub); msg.Payload != 4 {
		t.Fatalf("second queued payload = %v", msg.Payload)
	}
}
