package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/repledger/backend/internal/apperr"
	"github.com/repledger/backend/internal/events"
	"github.com/repledger/backend/internal/ledger"
	"github.com/repledger/backend/internal/models"
	"go.uber.org/zap"
)

const (
	orgWallet     = "0:org1"
	otherOrg      = "0:org2"
	outsider      = "0:outsider"
	aliceIdentity = "alice@example.org"
	aliceWallet   = "0:alice"
)

// memQueue mirrors the compare-and-swap semantics of PendingActionRepo.
type memQueue struct {
	mu          sync.Mutex
	items       map[uuid.UUID]*models.PendingAction
	clock       time.Time
	transitions [][2]string
}

func newMemQueue() *memQueue {
	return &memQueue{
		items: make(map[uuid.UUID]*models.PendingAction),
		clock: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (q *memQueue) Create(_ context.Context, a *models.PendingAction) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = q.clock.Add(time.Second)
	a.ID = uuid.New()
	a.Status = models.ActionStatusPending
	a.SubmittedAt = q.clock
	a.UpdatedAt = q.clock
	cp := *a
	q.items[a.ID] = &cp
	return nil
}

func (q *memQueue) GetByID(_ context.Context, id uuid.UUID) (*models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", apperr.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (q *memQueue) filter(keep func(*models.PendingAction) bool) []models.PendingAction {
	var out []models.PendingAction
	for _, a := range q.items {
		if keep(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

func (q *memQueue) ListPending(_ context.Context, limit, offset int) ([]models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.filter(func(a *models.PendingAction) bool { return a.Status == models.ActionStatusPending })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (q *memQueue) ListByIdentity(_ context.Context, identity string) ([]models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.filter(func(a *models.PendingAction) bool { return a.SubmitterIdentity == identity }), nil
}

func (q *memQueue) ListInFlight(_ context.Context, limit int) ([]models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.filter(func(a *models.PendingAction) bool { return a.Status == models.ActionStatusMinting })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// cas applies mutate when guard holds, recording the transition.
func (q *memQueue) cas(id uuid.UUID, op string, guard func(*models.PendingAction) bool, mutate func(*models.PendingAction)) (*models.PendingAction, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %s", apperr.ErrNotFound, id)
	}
	if !guard(a) {
		return nil, apperr.StateConflict("cannot %s request %s in status %s", op, id, a.Status)
	}
	from := a.Status
	mutate(a)
	q.transitions = append(q.transitions, [2]string{from, a.Status})
	cp := *a
	return &cp, nil
}

func (q *memQueue) Reserve(_ context.Context, id uuid.UUID, holder string, until time.Time) (*models.PendingAction, error) {
	return q.cas(id, "reserve",
		func(a *models.PendingAction) bool { return a.Status == models.ActionStatusPending },
		func(a *models.PendingAction) {
			a.Status = models.ActionStatusMinting
			a.ReservedBy = &holder
			a.ReservedUntil = &until
		})
}

func (q *memQueue) Release(_ context.Context, id uuid.UUID, holder string) (*models.PendingAction, error) {
	return q.cas(id, "release",
		func(a *models.PendingAction) bool {
			return a.Status == models.ActionStatusMinting && a.ReservedBy != nil && *a.ReservedBy == holder
		},
		func(a *models.PendingAction) {
			a.Status = models.ActionStatusPending
			a.ReservedBy, a.ReservedUntil = nil, nil
		})
}

func (q *memQueue) ReleaseExpired(_ context.Context, id uuid.UUID, now time.Time) (*models.PendingAction, error) {
	return q.cas(id, "release expired",
		func(a *models.PendingAction) bool {
			return a.Status == models.ActionStatusMinting && a.ReservedUntil != nil && a.ReservedUntil.Before(now)
		},
		func(a *models.PendingAction) {
			a.Status = models.ActionStatusPending
			a.ReservedBy, a.ReservedUntil = nil, nil
		})
}

func (q *memQueue) MarkApproved(_ context.Context, id uuid.UUID, ap models.Approval) (*models.PendingAction, error) {
	return q.cas(id, "approve",
		func(a *models.PendingAction) bool { return models.IsOpen(a.Status) },
		func(a *models.PendingAction) {
			a.Status = models.ActionStatusApproved
			a.ActionKey = &ap.ActionKey
			a.BasePoints = &ap.BasePoints
			a.BonusPoints = ap.BonusPoints
			a.TotalPoints = &ap.TotalPoints
			a.ApprovedBy = &ap.ApprovedBy
			a.TransactionRef = &ap.TransactionRef
			a.ReservedBy, a.ReservedUntil = nil, nil
		})
}

func (q *memQueue) MarkRejected(_ context.Context, id uuid.UUID) (*models.PendingAction, error) {
	return q.cas(id, "reject",
		func(a *models.PendingAction) bool { return a.Status == models.ActionStatusPending },
		func(a *models.PendingAction) { a.Status = models.ActionStatusRejected })
}

// memEvents is an in-memory event directory.
type memEvents struct {
	mu     sync.Mutex
	events map[string]models.Event
}

func newMemEvents(evs ...models.Event) *memEvents {
	m := &memEvents{events: make(map[string]models.Event)}
	for _, e := range evs {
		m.events[e.EventID] = e
	}
	return m
}

func (m *memEvents) Create(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.EventID]; ok {
		return apperr.StateConflict("event %s already exists", e.EventID)
	}
	e.CreatedAt = time.Now()
	m.events[e.EventID] = *e
	return nil
}

func (m *memEvents) GetByID(_ context.Context, id string) (*models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("%w: event %s", apperr.ErrNotFound, id)
	}
	return &e, nil
}

func (m *memEvents) List(_ context.Context, limit, offset int) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Event
	for _, e := range m.events {
		out = append(out, e)
	}
	return out, nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (m *memAudit) Log(_ context.Context, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memAudit) GetByEntity(_ context.Context, entityType string, id uuid.UUID, limit, offset int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, e := range m.entries {
		if e.EntityType == entityType && e.EntityID != nil && *e.EntityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type staticRegistry struct {
	schema *models.Schema
	err    error
}

func (r *staticRegistry) Get(context.Context) (*models.Schema, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.schema, nil
}

func (r *staticRegistry) Lookup(ctx context.Context, actionID string) (models.ActionDefinition, error) {
	s, err := r.Get(ctx)
	if err != nil {
		return models.ActionDefinition{}, err
	}
	def, ok := s.Actions[actionID]
	if !ok {
		return models.ActionDefinition{}, apperr.Validation("unknown action %q", actionID)
	}
	return def, nil
}

func testSchema() *models.Schema {
	return &models.Schema{
		CommunityID: "default",
		SchemaID:    "v1",
		Actions: map[string]models.ActionDefinition{
			"attended":      {ActionID: "attended", Label: "Attended Event", BasePoints: 10, BonusCap: 5},
			"volunteered":   {ActionID: "volunteered", Label: "Volunteered", BasePoints: 20, BonusCap: 10},
			"delivered_aid": {ActionID: "delivered_aid", Label: "Delivered Aid", BasePoints: 30, BonusCap: 15},
		},
	}
}

// scriptedLedger wraps a real Local ledger with injectable failures.
type scriptedLedger struct {
	*ledger.Local

	mu          sync.Mutex
	submitErr   error
	awaitErr    error
	awaitBlocks bool
	submits     int
}

func (s *scriptedLedger) Submit(ctx context.Context, p models.AwardPayload) (*ledger.Submission, error) {
	s.mu.Lock()
	s.submits++
	err := s.submitErr
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.Local.Submit(ctx, p)
}

func (s *scriptedLedger) AwaitConfirmation(ctx context.Context, sub *ledger.Submission) (*models.Receipt, error) {
	s.mu.Lock()
	blocks, err := s.awaitBlocks, s.awaitErr
	s.mu.Unlock()
	if blocks {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return s.Local.AwaitConfirmation(ctx, sub)
}

func (s *scriptedLedger) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

type testEnv struct {
	queue     *memQueue
	events    *memEvents
	audit     *memAudit
	publisher *recordingPublisher
	registry  *staticRegistry
	ledger    *scriptedLedger
	authority *Authority
	engine    *ApprovalEngine
	queueSvc  *QueueService
	history   *HistoryService
	driver    *MintDriver
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()

	env := &testEnv{
		queue: newMemQueue(),
		events: newMemEvents(
			models.Event{EventID: "event_1", Label: "Beach Cleanup"},
			models.Event{EventID: "event_2", Label: "Food Drive", OrganizerWallet: strPtr(orgWallet)},
		),
		audit:     &memAudit{},
		publisher: &recordingPublisher{},
		registry:  &staticRegistry{schema: testSchema()},
		ledger:    &scriptedLedger{Local: ledger.NewLocal([]string{orgWallet, otherOrg}, log)},
	}
	env.authority = NewAuthority(env.ledger)
	env.engine = NewApprovalEngine(env.queue, env.registry, env.authority, env.events, env.audit, env.publisher, 10*time.Minute, log)
	env.queueSvc = NewQueueService(env.queue, env.events, env.audit, env.authority, env.publisher, log)
	env.history = NewHistoryService(env.queue, env.ledger, env.registry, log)
	env.driver = NewMintDriver(env.engine, env.ledger, 50*time.Millisecond, log)
	return env
}

func (env *testEnv) submit(t *testing.T, eventID string) *models.PendingAction {
	t.Helper()
	a, err := env.queueSvc.Submit(context.Background(), aliceSession(), eventID)
	if err != nil {
		t.Fatalf("Submit(%q): %v", eventID, err)
	}
	return a
}

func (env *testEnv) status(t *testing.T, id uuid.UUID) string {
	t.Helper()
	a, err := env.queue.GetByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return a.Status
}

// commit writes payload to the ledger the way an organizer's wallet would.
func (env *testEnv) commit(t *testing.T, p *models.AwardPayload) models.ConfirmedAward {
	t.Helper()
	ctx := context.Background()
	sub, err := env.ledger.Local.Submit(ctx, *p)
	if err != nil {
		t.Fatalf("ledger submit: %v", err)
	}
	receipt, err := env.ledger.Local.AwaitConfirmation(ctx, sub)
	if err != nil {
		t.Fatalf("ledger confirm: %v", err)
	}
	return models.ConfirmedAward{Payload: *p, TransactionRef: receipt.TransactionRef}
}

func aliceSession() models.Session {
	return models.Session{Identity: aliceIdentity, Wallet: aliceWallet, Role: models.RoleMember}
}

func organizerSession(wallet string) models.Session {
	return models.Session{Wallet: wallet, Role: models.RoleOrganizer}
}

func strPtr(s string) *string { return &s }
