package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	domoutbox "github.com/Zhima-Mochi/payflow/internal/domain/outbox"
)

type testEvent struct{ name string }

func (e testEvent) EventName() string { return e.name }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var mu sync.Mutex
	var got []string
	bus.Subscribe("payment.completed", func(_ context.Context, e domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.EventName())
		return nil
	})

	if err := bus.Publish(context.Background(), testEvent{name: "payment.completed"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	// no subscriber for this one; it is dropped, not delivered
	if err := bus.Publish(context.Background(), testEvent{name: "payment.state_changed"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
}

func TestBusSurvivesHandlerPanic(t *testing.T) {
	bus := NewBus(nil)
	bus.Start(context.Background())
	defer bus.Stop(context.Background())

	var mu sync.Mutex
	delivered := 0
	bus.Subscribe("evt", func(context.Context, domoutbox.Event) error {
		panic("boom")
	})
	bus.Subscribe("evt", func(context.Context, domoutbox.Event) error {
		mu.Lock()
		defer mu.Unlock()
		delivered++
		return nil
	})

	_ = bus.Publish(context.Background(), testEvent{name: "evt"})
	_ = bus.Publish(context.Background(), testEvent{name: "evt"})

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 2
	})
}

func TestMultiPublisherFansOut(t *testing.T) {
	var a, b recordingPublisher
	m := MultiPublisher{&a, nil, &b}

	if err := m.Publish(context.Background(), testEvent{name: "evt"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if a.count != 1 || b.count != 1 {
		t.Errorf("deliveries = %d/%d, want 1/1", a.count, b.count)
	}
}

type recordingPublisher struct{ count int }

func (p *recordingPublisher) Publish(context.Context, domoutbox.Event) error {
	p.count++
	return nil
}
