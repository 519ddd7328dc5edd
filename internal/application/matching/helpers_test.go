package matching

import (
	"context"
	"sync"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

var (
	tenantA = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	fixedAt = time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
)

func day(d int) time.Time {
	return time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC)
}

func doc(kind matching.RecordKind, id string, amount int64, date time.Time, ref string) matching.CandidateTarget {
	return matching.CandidateTarget{
		Kind:      kind,
		ID:        id,
		Amount:    decimal.NewFromInt(amount),
		Date:      date,
		Currency:  "CLP",
		Reference: ref,
	}
}

// fakeDocuments serves every stored document to FindTargets; the generator does the filtering
type fakeDocuments struct {
	mu      sync.Mutex
	docs    []matching.CandidateTarget
	queries int
}

func (f *fakeDocuments) FindTargets(_ context.Context, _ uuid.UUID, q matching.TargetQuery) ([]matching.CandidateTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	out := make([]matching.CandidateTarget, 0, len(f.docs))
	for _, d := range f.docs {
		for _, k := range q.Kinds {
			if d.Kind == k && d.Ref() != q.Exclude {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (f *fakeDocuments) FindByRefs(_ context.Context, _ uuid.UUID, refs []matching.RecordRef) ([]matching.CandidateTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []matching.CandidateTarget
	for _, r := range refs {
		for _, d := range f.docs {
			if d.Ref() == r {
				out = append(out, d)
			}
		}
	}
	return out, nil
}

func (f *fakeDocuments) Upsert(_ context.Context, _ uuid.UUID, docs []matching.CandidateTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, docs...)
	return nil
}

// MockLinkRepository is a mock implementation of matching.LinkRepository
type MockLinkRepository struct {
	mock.Mock
}

func (m *MockLinkRepository) CounterpartLinkCounts(ctx context.Context, tenantID uuid.UUID, ids []string) (map[string]int, error) {
	args := m.Called(ctx, tenantID, ids)
	return args.Get(0).(map[string]int), args.Error(1)
}

func (m *MockLinkRepository) FindByID(ctx context.Context, tenantID, id uuid.UUID) (*matching.ReconciliationLink, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matching.ReconciliationLink), args.Error(1)
}

func (m *MockLinkRepository) ListBySource(ctx context.Context, tenantID uuid.UUID, sourceKey string) ([]matching.ReconciliationLink, error) {
	args := m.Called(ctx, tenantID, sourceKey)
	return args.Get(0).([]matching.ReconciliationLink), args.Error(1)
}

func (m *MockLinkRepository) FindActive(ctx context.Context, tenantID uuid.UUID, key string) (*matching.ReconciliationLink, error) {
	args := m.Called(ctx, tenantID, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matching.ReconciliationLink), args.Error(1)
}

func (m *MockLinkRepository) Confirm(ctx context.Context, link *matching.ReconciliationLink) (*matching.ReconciliationLink, bool, error) {
	args := m.Called(ctx, link)
	switch v := args.Get(0).(type) {
	case nil:
		return nil, false, args.Error(2)
	case func(*matching.ReconciliationLink) *matching.ReconciliationLink:
		return v(link), args.Bool(1), args.Error(2)
	default:
		return v.(*matching.ReconciliationLink), args.Bool(1), args.Error(2)
	}
}

func (m *MockLinkRepository) Void(ctx context.Context, link *matching.ReconciliationLink) error {
	args := m.Called(ctx, link)
	return args.Error(0)
}

// mapCache is a SuggestionCache over a plain map
type mapCache struct {
	mu          sync.Mutex
	sets        map[string]*matching.SuggestionSet
	invalidated int
}

func newMapCache() *mapCache {
	return &mapCache{sets: make(map[string]*matching.SuggestionSet)}
}

func (c *mapCache) Get(_ context.Context, tenantID uuid.UUID, key string) (*matching.SuggestionSet, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sets[tenantID.String()+key]
	return s, ok, nil
}

func (c *mapCache) Set(_ context.Context, tenantID uuid.UUID, key string, set *matching.SuggestionSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[tenantID.String()+key] = set
	return nil
}

func (c *mapCache) InvalidateTenant(context.Context, uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets = make(map[string]*matching.SuggestionSet)
	c.invalidated++
	return nil
}

// recordingPublisher collects published events
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...shared.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType()
	}
	return out
}

// serialLocker is a single mutex standing in for the keyed lock
type serialLocker struct {
	mu    sync.Mutex
	calls [][]string
}

func (l *serialLocker) Lock(_ context.Context, keys ...string) (func(), error) {
	l.mu.Lock()
	l.calls = append(l.calls, keys)
	return l.mu.Unlock, nil
}

type fixture struct {
	docs      *fakeDocuments
	links     *MockLinkRepository
	cache     *mapCache
	publisher *recordingPublisher
	locker    *serialLocker
	service   *ReconciliationService
}

func newFixture(search matching.CombinationConfig, docs ...matching.CandidateTarget) *fixture {
	f := &fixture{
		docs:      &fakeDocuments{docs: docs},
		links:     &MockLinkRepository{},
		cache:     newMapCache(),
		publisher: &recordingPublisher{},
		locker:    &serialLocker{},
	}
	f.links.On("CounterpartLinkCounts", mock.Anything, mock.Anything, mock.Anything).Return(map[string]int{}, nil).Maybe()

	engine := matching.NewEngine(
		matching.NewCandidateGenerator(f.docs),
		matching.NewDefaultScorer(),
		matching.NewCombinationSearch(search, nil),
		f.links,
		matching.DefaultEngineConfig(),
	)
	f.service = NewReconciliationService(
		engine,
		matching.NewToleranceResolver(matching.DefaultToleranceConfig()),
		f.docs,
		f.links,
		f.locker,
		f.publisher,
		zap.NewNop(),
		WithSuggestionCache(f.cache),
		WithClock(func() time.Time { return fixedAt }),
		WithBatchLimits(3, 2),
	)
	return f
}
