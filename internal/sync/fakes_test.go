package sync

import (
	"context"
	"strings"
	"time"

	"github.com/clearfork/marketsync/internal/domain"
)

// fakeStreamStore is an in-memory SyncStreamStore for driver tests.
type fakeStreamStore struct {
	running   map[domain.Stream]bool
	cursors   map[domain.Stream]*domain.Cursor
	status    map[domain.Stream]domain.RunStatus
	lastError map[domain.Stream]string
	processed map[domain.Stream]int64

	// denyAcquire forces TryAcquire to report a lost race.
	denyAcquire bool

	cursorWrites []domain.Cursor
}

func newFakeStreamStore() *fakeStreamStore {
	return &fakeStreamStore{
		running:   make(map[domain.Stream]bool),
		cursors:   make(map[domain.Stream]*domain.Cursor),
		status:    make(map[domain.Stream]domain.RunStatus),
		lastError: make(map[domain.Stream]string),
		processed: make(map[domain.Stream]int64),
	}
}

func (f *fakeStreamStore) TryAcquire(_ context.Context, stream domain.Stream) (bool, error) {
	if f.denyAcquire || f.running[stream] {
		return false, nil
	}
	f.running[stream] = true
	f.status[stream] = domain.RunStatusRunning
	return true, nil
}

func (f *fakeStreamStore) Complete(_ context.Context, stream domain.Stream, processed int) error {
	f.running[stream] = false
	f.status[stream] = domain.RunStatusCompleted
	f.processed[stream] += int64(processed)
	return nil
}

func (f *fakeStreamStore) Fail(_ context.Context, stream domain.Stream, msg string) error {
	f.running[stream] = false
	f.status[stream] = domain.RunStatusError
	f.lastError[stream] = msg
	return nil
}

func (f *fakeStreamStore) Cursor(_ context.Context, stream domain.Stream) (*domain.Cursor, error) {
	if c := f.cursors[stream]; c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (f *fakeStreamStore) SetCursor(_ context.Context, stream domain.Stream, c domain.Cursor) error {
	cp := c
	f.cursors[stream] = &cp
	f.cursorWrites = append(f.cursorWrites, c)
	return nil
}

func (f *fakeStreamStore) State(_ context.Context, stream domain.Stream) (domain.StreamState, error) {
	status, ok := f.status[stream]
	if !ok {
		return domain.StreamState{}, domain.ErrNotFound
	}
	st := domain.StreamState{
		Stream:         stream,
		Status:         status,
		TotalProcessed: f.processed[stream],
		Cursor:         f.cursors[stream],
	}
	if msg := f.lastError[stream]; msg != "" {
		st.ErrorMessage = &msg
	}
	return st, nil
}

// fakeConditionStore is an in-memory ConditionStore.
type fakeConditionStore struct {
	conditions map[string]domain.Condition
	upsertErr  error
}

func newFakeConditionStore() *fakeConditionStore {
	return &fakeConditionStore{conditions: make(map[string]domain.Condition)}
}

func (f *fakeConditionStore) Upsert(_ context.Context, c domain.Condition) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if prev, ok := f.conditions[c.ID]; ok {
		// Resolution state belongs to the resolutions stream; a replayed
		// condition record must not regress it.
		c.Resolved = prev.Resolved
		c.ResolutionStatus = prev.ResolutionStatus
		c.Flagged = prev.Flagged
		c.Paused = prev.Paused
		c.LastUpdated = prev.LastUpdated
		c.Price = prev.Price
		c.WasDisputed = prev.WasDisputed
		c.Approved = prev.Approved
		c.DeadlineAt = prev.DeadlineAt
		c.LivenessSeconds = prev.LivenessSeconds
	}
	f.conditions[c.ID] = c
	return nil
}

func (f *fakeConditionStore) GetByID(_ context.Context, id string) (domain.Condition, error) {
	c, ok := f.conditions[id]
	if !ok {
		return domain.Condition{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeConditionStore) GetByQuestionID(_ context.Context, questionID string) (domain.Condition, error) {
	for _, c := range f.conditions {
		if strings.EqualFold(c.QuestionID, questionID) {
			return c, nil
		}
	}
	return domain.Condition{}, domain.ErrNotFound
}

func (f *fakeConditionStore) UpdateResolution(_ context.Context, c domain.Condition) error {
	if _, ok := f.conditions[c.ID]; !ok {
		return domain.ErrNotFound
	}
	f.conditions[c.ID] = c
	return nil
}

// fakeEventStore is an in-memory EventStore.
type fakeEventStore struct {
	events  map[int64]domain.Event
	nextID  int64
	updates int
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[int64]domain.Event), nextID: 1}
}

func (f *fakeEventStore) GetBySlug(_ context.Context, slug string) (domain.Event, error) {
	for _, e := range f.events {
		if e.Slug == slug {
			return e, nil
		}
	}
	return domain.Event{}, domain.ErrNotFound
}

func (f *fakeEventStore) Insert(_ context.Context, e domain.Event) (int64, error) {
	e.ID = f.nextID
	f.nextID++
	f.events[e.ID] = e
	return e.ID, nil
}

func (f *fakeEventStore) Update(_ context.Context, e domain.Event) error {
	if _, ok := f.events[e.ID]; !ok {
		return domain.ErrNotFound
	}
	f.events[e.ID] = e
	return nil
}

func (f *fakeEventStore) ListByIDs(_ context.Context, ids []int64) ([]domain.Event, error) {
	var out []domain.Event
	for _, id := range ids {
		if e, ok := f.events[id]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEventStore) UpdateStatus(_ context.Context, id int64, status domain.EventStatus, resolvedAt *time.Time) error {
	e, ok := f.events[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = status
	e.ResolvedAt = resolvedAt
	f.events[id] = e
	f.updates++
	return nil
}

// fakeMarketStore is an in-memory MarketStore.
type fakeMarketStore struct {
	markets     map[string]domain.Market
	flagsWrites int
}

func newFakeMarketStore() *fakeMarketStore {
	return &fakeMarketStore{markets: make(map[string]domain.Market)}
}

func (f *fakeMarketStore) Upsert(_ context.Context, m domain.Market) (bool, error) {
	_, existed := f.markets[m.ConditionID]
	if existed {
		// Activity flags are owned by the resolutions stream.
		prev := f.markets[m.ConditionID]
		m.IsActive = prev.IsActive
		m.IsResolved = prev.IsResolved
	}
	f.markets[m.ConditionID] = m
	return existed, nil
}

func (f *fakeMarketStore) GetByConditionID(_ context.Context, conditionID string) (domain.Market, error) {
	m, ok := f.markets[conditionID]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeMarketStore) GetByNegRiskRequestID(_ context.Context, requestID string) (domain.Market, error) {
	if requestID == "" {
		return domain.Market{}, domain.ErrNotFound
	}
	for _, m := range f.markets {
		if m.NegRiskRequestID == requestID {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (f *fakeMarketStore) UpdateFlags(_ context.Context, conditionID string, isActive, isResolved bool) error {
	m, ok := f.markets[conditionID]
	if !ok {
		return domain.ErrNotFound
	}
	m.IsActive = &isActive
	m.IsResolved = &isResolved
	f.markets[conditionID] = m
	f.flagsWrites++
	return nil
}

func (f *fakeMarketStore) ListByEventIDs(_ context.Context, eventIDs []int64) ([]domain.Market, error) {
	want := make(map[int64]bool, len(eventIDs))
	for _, id := range eventIDs {
		want[id] = true
	}
	var out []domain.Market
	for _, m := range f.markets {
		if want[m.EventID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMarketStore) ListResolvedSince(_ context.Context, since time.Time) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range f.markets {
		if m.IsResolved != nil && *m.IsResolved && !m.UpdatedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

// fakeOutcomeStore is an in-memory OutcomeStore.
type fakeOutcomeStore struct {
	outcomes      map[string][]domain.Outcome
	payoutWrites  int
	insertBatches int
}

func newFakeOutcomeStore() *fakeOutcomeStore {
	return &fakeOutcomeStore{outcomes: make(map[string][]domain.Outcome)}
}

func (f *fakeOutcomeStore) InsertAll(_ context.Context, outcomes []domain.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	key := outcomes[0].ConditionID
	if _, ok := f.outcomes[key]; ok {
		return nil
	}
	f.outcomes[key] = append([]domain.Outcome(nil), outcomes...)
	f.insertBatches++
	return nil
}

func (f *fakeOutcomeStore) ListByConditionID(_ context.Context, conditionID string) ([]domain.Outcome, error) {
	return append([]domain.Outcome(nil), f.outcomes[conditionID]...), nil
}

func (f *fakeOutcomeStore) SetPayout(_ context.Context, conditionID string, index int, payout float64, winning bool) error {
	legs := f.outcomes[conditionID]
	for i, o := range legs {
		if o.Index == index {
			o.Payout = &payout
			o.IsWinning = winning
			legs[i] = o
			f.payoutWrites++
			return nil
		}
	}
	return domain.ErrNotFound
}

// fakeMetadataStore serves metadata documents by hash.
type fakeMetadataStore struct {
	docs    map[string]*domain.MarketMetadata
	fetches int
}

func (f *fakeMetadataStore) FetchMetadata(_ context.Context, hash string) (*domain.MarketMetadata, error) {
	f.fetches++
	doc, ok := f.docs[hash]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

var (
	_ domain.SyncStreamStore = (*fakeStreamStore)(nil)
	_ domain.ConditionStore  = (*fakeConditionStore)(nil)
	_ domain.EventStore      = (*fakeEventStore)(nil)
	_ domain.MarketStore     = (*fakeMarketStore)(nil)
	_ domain.OutcomeStore    = (*fakeOutcomeStore)(nil)
)
