package order

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tiziaco/intelli-trader/internal/events"
)

type captureBus struct {
	published []events.Event
}

func (b *captureBus) Publish(e events.Event) {
	b.published = append(b.published, e)
}

func (b *captureBus) orderEvents() []events.OrderEvent {
	var out []events.OrderEvent
	for _, e := range b.published {
		if oe, ok := e.(events.OrderEvent); ok {
			out = append(out, oe)
		}
	}
	return out
}

func newTestManager(mode ExecutionMode) (*Manager, *captureBus) {
	bus := &captureBus{}
	m := NewManager(NewMemoryStorage(), bus, nil, nil, nil, mode)
	return m, bus
}

func marketSignal(qty, price float64) events.SignalEvent {
	return events.SignalEvent{
		Ticker:      "BTCUSDT",
		Side:        "BUY",
		OrderType:   "MARKET",
		Quantity:    qty,
		Price:       price,
		PortfolioID: "p1",
		StrategyID:  "s1",
		Timestamp:   time.Now(),
	}
}

func TestImmediateModeFillsMarketAtCreation(t *testing.T) {
	m, bus := newTestManager(ModeImmediate)

	o, err := m.HandleSignal(marketSignal(2, 100))
	if err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	if o.Status != StatusFilled {
		t.Fatalf("expected immediate FILLED, got %s", o.Status)
	}

	oes := bus.orderEvents()
	if len(oes) != 2 {
		t.Fatalf("expected PENDING then FILLED events, got %d", len(oes))
	}
	if oes[0].Status != string(StatusPending) || oes[1].Status != string(StatusFilled) {
		t.Errorf("unexpected event sequence: %s, %s", oes[0].Status, oes[1].Status)
	}
	if oes[1].Price != 100 || oes[1].Quantity != 2 {
		t.Errorf("fill event should carry price and quantity: %+v", oes[1])
	}
}

func TestNextBarModeFillsAtBarOpen(t *testing.T) {
	m, bus := newTestManager(ModeNextBar)

	o, err := m.HandleSignal(marketSignal(2, 100))
	if err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	if o.Status != StatusPending {
		t.Fatalf("next_bar market order must stay PENDING, got %s", o.Status)
	}

	m.HandleBar(events.BarEvent{
		Ticker: "BTCUSDT", Open: 101.5, High: 103, Low: 99, Close: 102,
		Timestamp: time.Now(),
	})

	got, _ := m.Storage().Get(o.ID)
	if got.Status != StatusFilled {
		t.Fatalf("expected FILLED after bar, got %s", got.Status)
	}

	oes := bus.orderEvents()
	last := oes[len(oes)-1]
	if last.Price != 101.5 {
		t.Errorf("next_bar fill must use the bar open, got %f", last.Price)
	}
}

func TestProtectiveOCOPairCreated(t *testing.T) {
	m, _ := newTestManager(ModeImmediate)

	sig := marketSignal(1, 100)
	sig.StopLoss = 90
	sig.TakeProfit = 110
	entry, err := m.HandleSignal(sig)
	if err != nil {
		t.Fatalf("signal failed: %v", err)
	}
	if entry.Status != StatusFilled {
		t.Fatalf("entry should fill immediately, got %s", entry.Status)
	}

	active := m.Storage().Active("p1")
	if len(active) != 2 {
		t.Fatalf("expected 2 protective orders active, got %d", len(active))
	}

	var stop, limit *Order
	for _, o := range active {
		switch o.Type {
		case TypeStop:
			stop = o
		case TypeLimit:
			limit = o
		}
	}
	if stop == nil || limit == nil {
		t.Fatal("expected one STOP and one LIMIT order")
	}
	if stop.Side != SideSell || limit.Side != SideSell {
		t.Error("protective orders for a BUY entry must be SELL")
	}
	if stop.Price != 90 || limit.Price != 110 {
		t.Errorf("unexpected protective prices: stop=%f limit=%f", stop.Price, limit.Price)
	}
	if stop.OCOGroupID == "" || stop.OCOGroupID != limit.OCOGroupID {
		t.Error("protective pair must share an OCO group id")
	}
}

func TestOCOSiblingCancelledOnTrigger(t *testing.T) {
	m, _ := newTestManager(ModeImmediate)

	sig := marketSignal(1, 100)
	sig.StopLoss = 90
	sig.TakeProfit = 110
	if _, err := m.HandleSignal(sig); err != nil {
		t.Fatalf("signal failed: %v", err)
	}

	// Close above the take-profit: the limit triggers, the stop must be
	// cancelled with reason OCO.
	m.HandleBar(events.BarEvent{
		Ticker: "BTCUSDT", Open: 110, High: 112, Low: 109, Close: 111,
		Timestamp: time.Now(),
	})

	var stop, limit *Order
	for _, o := range m.Storage().All() {
		switch {
		case o.Type == TypeStop:
			stop = o
		case o.Type == TypeLimit:
			limit = o
		}
	}

	if limit.Status != StatusFilled {
		t.Fatalf("take-profit should have filled, got %s", limit.Status)
	}
	if stop.Status != StatusCancelled {
		t.Fatalf("stop should be OCO-cancelled, got %s", stop.Status)
	}

	last := stop.Log[len(stop.Log)-1]
	if last.Reason != "OCO" {
		t.Errorf("expected cancel reason OCO, got %q", last.Reason)
	}

	// History retained, not deleted.
	if _, err := m.Storage().Get(stop.ID); err != nil {
		t.Errorf("cancelled sibling disappeared: %v", err)
	}
	if len(m.Storage().Active("p1")) != 0 {
		t.Error("no orders should remain active")
	}
}

func TestTriggerDirections(t *testing.T) {
	cases := []struct {
		name    string
		typ     Type
		side    Side
		trigger float64
		close   float64
		fires   bool
	}{
		{"sell stop fires below", TypeStop, SideSell, 90, 89, true},
		{"sell stop holds at level", TypeStop, SideSell, 90, 90, false},
		{"sell stop holds above", TypeStop, SideSell, 90, 91, false},
		{"buy stop fires above", TypeStop, SideBuy, 110, 111, true},
		{"buy stop holds at level", TypeStop, SideBuy, 110, 110, false},
		{"sell limit fires above", TypeLimit, SideSell, 110, 111, true},
		{"sell limit holds below", TypeLimit, SideSell, 110, 109, false},
		{"buy limit fires below", TypeLimit, SideBuy, 90, 89, true},
		{"buy limit holds at level", TypeLimit, SideBuy, 90, 90, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, _ := newTestManager(ModeImmediate)
			o := New("p1", "s1", "BTCUSDT", tc.side, tc.typ, 1, tc.trigger, time.Now())
			if err := m.Storage().Add(o); err != nil {
				t.Fatalf("add failed: %v", err)
			}

			m.HandleBar(events.BarEvent{
				Ticker: "BTCUSDT", Open: tc.close, High: tc.close, Low: tc.close, Close: tc.close,
				Timestamp: time.Now(),
			})

			got, _ := m.Storage().Get(o.ID)
			filled := got.Status == StatusFilled
			if filled != tc.fires {
				t.Errorf("close=%f trigger=%f: expected fires=%v, got status %s",
					tc.close, tc.trigger, tc.fires, got.Status)
			}
		})
	}
}

func TestPerPortfolioValidator(t *testing.T) {
	strict := NewValidator()
	strict.MinOrderValue = 500
	validators := func(portfolioID string) *Validator {
		if portfolioID == "strict" {
			return strict
		}
		return nil // default limits
	}
	bus := &captureBus{}
	m := NewManager(NewMemoryStorage(), bus, validators, nil, nil, ModeImmediate)

	sig := marketSignal(1, 100) // value 100
	sig.PortfolioID = "strict"
	if _, err := m.HandleSignal(sig); err == nil {
		t.Fatal("strict portfolio's minimum order value should reject")
	}

	sig.PortfolioID = "p1"
	if _, err := m.HandleSignal(sig); err != nil {
		t.Fatalf("default limits should accept: %v", err)
	}
}

func TestRejectedSignalIsRecorded(t *testing.T) {
	m, bus := newTestManager(ModeImmediate)

	sig := marketSignal(1, -5)
	if _, err := m.HandleSignal(sig); err == nil {
		t.Fatal("expected validation error")
	}

	rejected := m.Storage().ByStatus(StatusRejected)
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejected order on record, got %d", len(rejected))
	}
	last := rejected[0].Log[len(rejected[0].Log)-1]
	if !strings.Contains(last.Reason, "price") {
		t.Errorf("rejection reason should name the failure, got %q", last.Reason)
	}

	oes := bus.orderEvents()
	if len(oes) != 1 || oes[0].Status != string(StatusRejected) {
		t.Errorf("expected a single REJECTED event, got %+v", oes)
	}
}

type rejectAll struct{}

func (rejectAll) Approve(sig events.SignalEvent, view PortfolioView) (events.SignalEvent, error) {
	return sig, errors.New("risk says no")
}

func TestApproverRejectionIsRecorded(t *testing.T) {
	bus := &captureBus{}
	m := NewManager(NewMemoryStorage(), bus, nil, []Approver{rejectAll{}}, nil, ModeImmediate)

	if _, err := m.HandleSignal(marketSignal(1, 100)); err == nil {
		t.Fatal("expected approver rejection")
	}
	if got := len(m.Storage().ByStatus(StatusRejected)); got != 1 {
		t.Fatalf("expected rejected order on record, got %d", got)
	}
}

func TestManagerCancelIdempotent(t *testing.T) {
	m, bus := newTestManager(ModeNextBar)

	o, err := m.HandleSignal(marketSignal(1, 100))
	if err != nil {
		t.Fatalf("signal failed: %v", err)
	}

	if err := m.Cancel(o.ID, "user request", time.Now()); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	before := len(bus.orderEvents())

	if err := m.Cancel(o.ID, "user request", time.Now()); err != nil {
		t.Fatalf("repeated cancel errored: %v", err)
	}
	if len(bus.orderEvents()) != before {
		t.Error("repeated cancel must not emit another event")
	}

	got, _ := m.Storage().Get(o.ID)
	if got.Status != StatusCancelled {
		t.Errorf("expected CANCELLED, got %s", got.Status)
	}
}

func TestModify(t *testing.T) {
	m, _ := newTestManager(ModeNextBar)

	o, err := m.HandleSignal(marketSignal(1, 100))
	if err != nil {
		t.Fatalf("signal failed: %v", err)
	}

	if err := m.Modify(o.ID, ModifyParams{Quantity: 2, Price: 105}, time.Now()); err != nil {
		t.Fatalf("modify failed: %v", err)
	}
	got, _ := m.Storage().Get(o.ID)
	if got.Quantity != 2 || got.Price != 105 {
		t.Errorf("modify not applied: %+v", got)
	}

	m.HandleBar(events.BarEvent{Ticker: "BTCUSDT", Open: 100, Close: 100, Timestamp: time.Now()})
	if err := m.Modify(o.ID, ModifyParams{Quantity: 3, Price: 100}, time.Now()); !errors.Is(err, ErrNotPending) {
		t.Errorf("expected ErrNotPending after fill, got %v", err)
	}
}

func TestCancelPortfolio(t *testing.T) {
	m, _ := newTestManager(ModeNextBar)

	for i := 0; i < 3; i++ {
		if _, err := m.HandleSignal(marketSignal(1, 100)); err != nil {
			t.Fatalf("signal %d failed: %v", i, err)
		}
	}

	if n := m.CancelPortfolio("p1", "shutdown", time.Now()); n != 3 {
		t.Fatalf("expected 3 cancelled, got %d", n)
	}
	if got := len(m.Storage().Active("p1")); got != 0 {
		t.Errorf("active orders remain: %d", got)
	}
	if got := len(m.Storage().All()); got != 3 {
		t.Errorf("history lost: %d orders", got)
	}
}
