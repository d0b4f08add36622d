package events

import (
	"context"
	"testing"
	"time"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(16)

	var got []string
	bus.Subscribe(TypeBar, func(e Event) {
		got = append(got, e.(BarEvent).Ticker)
	})

	for _, ticker := range []string{"a", "b", "c", "d"} {
		bus.Publish(BarEvent{Ticker: ticker, Timestamp: time.Now()})
	}
	bus.Drain()

	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBusFanOutOrder(t *testing.T) {
	bus := NewBus(4)

	var got []string
	bus.Subscribe(TypeFill, func(e Event) { got = append(got, "first") })
	bus.Subscribe(TypeFill, func(e Event) { got = append(got, "second") })

	bus.Publish(FillEvent{OrderID: "o1", Timestamp: time.Now()})
	bus.Drain()

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Fatalf("handlers ran out of registration order: %v", got)
	}
}

func TestBusBackpressure(t *testing.T) {
	bus := NewBus(2)

	if !bus.TryPublish(BarEvent{Ticker: "a"}) {
		t.Fatal("first publish should succeed")
	}
	if !bus.TryPublish(BarEvent{Ticker: "b"}) {
		t.Fatal("second publish should succeed")
	}
	if bus.TryPublish(BarEvent{Ticker: "c"}) {
		t.Fatal("publish into a full queue should fail, not drop")
	}

	// Blocking publish completes once the dispatcher makes room.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx)

	done := make(chan struct{})
	go func() {
		bus.Publish(BarEvent{Ticker: "c"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked publish never completed after queue drained")
	}
}

func TestBusHandlerEmissionsDoNotBlockDispatch(t *testing.T) {
	// Capacity 1: after the handler refills the queue, any further
	// blocking publish from inside dispatch could never complete.
	bus := NewBus(1)
	em := bus.Emitter()

	var got []string
	bus.Subscribe(TypeBar, func(e Event) {
		bar := e.(BarEvent)
		got = append(got, "bar:"+bar.Ticker)
		if bar.Ticker == "x1" {
			bus.Publish(BarEvent{Ticker: "x2", Timestamp: time.Now()})
			em.Publish(OrderEvent{OrderID: "o1", Timestamp: time.Now()})
			em.Publish(OrderEvent{OrderID: "o2", Timestamp: time.Now()})
		}
	})
	bus.Subscribe(TypeOrder, func(e Event) {
		got = append(got, "order:"+e.(OrderEvent).OrderID)
	})

	bus.Publish(BarEvent{Ticker: "x1", Timestamp: time.Now()})

	done := make(chan struct{})
	go func() {
		bus.Drain()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch stalled: handler output blocked on the full queue")
	}

	// Emitted events are delivered before the next queued event.
	want := []string{"bar:x1", "order:o1", "order:o2", "bar:x2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d deliveries, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delivery %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestBusHandlerPanicDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(8)

	var delivered int
	bus.Subscribe(TypeOrder, func(e Event) { panic("boom") })
	bus.Subscribe(TypeOrder, func(e Event) { delivered++ })

	bus.Publish(OrderEvent{OrderID: "o1", Timestamp: time.Now()})
	bus.Publish(OrderEvent{OrderID: "o2", Timestamp: time.Now()})
	bus.Drain()

	if delivered != 2 {
		t.Fatalf("expected 2 deliveries past the panicking handler, got %d", delivered)
	}
}

func TestBusUnknownTypeIsIgnored(t *testing.T) {
	bus := NewBus(4)
	bus.Publish(SignalEvent{Ticker: "BTCUSDT", Timestamp: time.Now()})
	bus.Drain() // no subscribers; must not block or panic
}
