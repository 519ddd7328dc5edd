package event

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New(), uuid.New(), time.Now()),
	}
}

type recorder struct {
	mu      sync.Mutex
	handled []string
	err     error
}

func (r *recorder) handler(types ...string) *HandlerFunc {
	return &HandlerFunc{Types: types, Fn: func(_ context.Context, e shared.DomainEvent) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.handled = append(r.handled, e.EventType())
		return r.err
	}}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.handled...)
}

func startedBus(t *testing.T) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(zap.NewNop())
	require.NoError(t, bus.Start(context.Background()))
	return bus
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := startedBus(t)
	rec := &recorder{}
	bus.Subscribe(rec.handler(matching.EventTypeLinkConfirmed))

	require.NoError(t, bus.Publish(context.Background(),
		newTestEvent(matching.EventTypeLinkConfirmed),
		newTestEvent(matching.EventTypeLinkVoided),
		newTestEvent(matching.EventTypeLinkConfirmed),
	))
	assert.Equal(t, []string{matching.EventTypeLinkConfirmed, matching.EventTypeLinkConfirmed}, rec.got())
}

func TestInMemoryEventBus_ExplicitTypesOverrideHandlerTypes(t *testing.T) {
	bus := startedBus(t)
	rec := &recorder{}
	bus.Subscribe(rec.handler("ignored"), matching.EventTypeLinkVoided)

	_ = bus.Publish(context.Background(), newTestEvent("ignored"), newTestEvent(matching.EventTypeLinkVoided))
	assert.Equal(t, []string{matching.EventTypeLinkVoided}, rec.got())
}

func TestInMemoryEventBus_Wildcard(t *testing.T) {
	bus := startedBus(t)
	rec := &recorder{}
	bus.Subscribe(rec.handler())

	_ = bus.Publish(context.Background(), newTestEvent("a"), newTestEvent("b"))
	assert.Equal(t, []string{"a", "b"}, rec.got())
}

func TestInMemoryEventBus_FailingHandlersDoNotStopOthers(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewInMemoryEventBus(zap.New(core))
	require.NoError(t, bus.Start(context.Background()))

	failing := &recorder{err: errors.New("cache down")}
	ok := &recorder{}
	bus.Subscribe(failing.handler("x"))
	bus.Subscribe(&HandlerFunc{Types: []string{"x"}, Fn: func(context.Context, shared.DomainEvent) error {
		panic("boom")
	}})
	bus.Subscribe(ok.handler("x"))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("x")))
	assert.Len(t, failing.got(), 1)
	assert.Len(t, ok.got(), 1)
	assert.Equal(t, 2, logs.FilterMessage("handler failed to process event").Len())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := startedBus(t)
	rec := &recorder{}
	h := rec.handler("x")
	bus.Subscribe(h)
	bus.Subscribe(h, "y")

	_ = bus.Publish(context.Background(), newTestEvent("x"))
	bus.Unsubscribe(h)
	_ = bus.Publish(context.Background(), newTestEvent("x"), newTestEvent("y"))

	assert.Len(t, rec.got(), 1)
}

func TestInMemoryEventBus_StoppedDropsEvents(t *testing.T) {
	bus := startedBus(t)
	rec := &recorder{}
	bus.Subscribe(rec.handler("x"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Stop(ctx))

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("x")))
	assert.Empty(t, rec.got())
}

func TestInMemoryEventBus_PublishPending(t *testing.T) {
	bus := startedBus(t)
	rec := &recorder{}
	bus.Subscribe(rec.handler(matching.EventTypeLinkConfirmed))

	tenantID := uuid.New()
	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	source := matching.SourceRecord{
		Kind: matching.KindBankMovement, ID: "MOV-1",
		Amount: decimal.NewFromInt(-1500000), Date: now, Currency: "CLP",
	}
	target := matching.CandidateTarget{
		Kind: matching.KindPurchaseInvoice, ID: "F-2024-0891",
		Amount: decimal.NewFromInt(1500000), Date: now, Currency: "CLP",
	}
	link, err := matching.NewReconciliationLink(tenantID, matching.ConfirmInput{
		Source:      source.Ref(),
		Targets:     []matching.RecordRef{target.Ref()},
		Confidence:  0.95,
		ConfirmedBy: "ana",
	}, source, []matching.CandidateTarget{target}, matching.DefaultToleranceConfig(), now)
	require.NoError(t, err)

	require.NoError(t, bus.PublishPending(context.Background(), link))
	assert.Equal(t, []string{matching.EventTypeLinkConfirmed}, rec.got())
	assert.Empty(t, link.GetDomainEvents())
}
