package changes

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/hotelcms/hotelcms/internal/entries"
	"github.com/hotelcms/hotelcms/internal/shared"
)

type storedChange struct {
	change      PendingChange
	rawChange   []byte
	rawOriginal []byte
}

// memoryStore keeps changes and live records in memory. WithTx serialises
// transactions and restores the previous state when the callback fails.
type memoryStore struct {
	mu      sync.Mutex
	nextID  int64
	changes map[int64]storedChange
	live    map[entries.Entry]map[string]any
	clock   time.Time
	failTx  error
	// idem receives keys bound inside a transaction; failBind makes binding fail.
	idem     *memoryIdempotency
	failBind error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		changes: make(map[int64]storedChange),
		live:    make(map[entries.Entry]map[string]any),
		clock:   time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}
}

func (m *memoryStore) seed(entry entries.Entry, values map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[entry] = values
}

func (m *memoryStore) liveRecord(entry entries.Entry) map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneValues(m.live[entry])
}

func (m *memoryStore) insertRaw(userID int64, entry entries.Entry, rawChange, rawOriginal string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.newRecord(userID, entry, []byte(rawChange), []byte(rawOriginal))
	return c.change.ID
}

func (m *memoryStore) newRecord(userID int64, entry entries.Entry, rawChange, rawOriginal []byte) storedChange {
	m.nextID++
	m.clock = m.clock.Add(time.Minute)
	c := storedChange{
		change: PendingChange{
			ID:        m.nextID,
			UserID:    userID,
			Entry:     entry,
			Status:    StatusPending,
			CreatedAt: m.clock,
			UpdatedAt: m.clock,
		},
		rawChange:   rawChange,
		rawOriginal: rawOriginal,
	}
	m.changes[c.change.ID] = c
	return c
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTx != nil {
		return m.failTx
	}
	changes := make(map[int64]storedChange, len(m.changes))
	for id, c := range m.changes {
		changes[id] = c
	}
	live := make(map[entries.Entry]map[string]any, len(m.live))
	for e, v := range m.live {
		live[e] = cloneValues(v)
	}
	nextID, clock := m.nextID, m.clock
	if err := fn(ctx, &memoryTx{store: m}); err != nil {
		m.changes, m.live, m.nextID, m.clock = changes, live, nextID, clock
		return err
	}
	return nil
}

func (m *memoryStore) Get(ctx context.Context, id int64) (PendingChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.changes[id]
	if !ok {
		return PendingChange{}, ErrNotFound
	}
	return c.view(), nil
}

func (m *memoryStore) List(ctx context.Context, filter Filter) ([]PendingChange, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	filter = filter.normalized()
	var out []PendingChange
	for _, c := range m.changes {
		pc := c.change
		switch {
		case filter.Status != "" && pc.Status != filter.Status:
		case filter.EntryType != "" && pc.Entry.Type != filter.EntryType:
		case filter.EntryID > 0 && pc.Entry.ID != filter.EntryID:
		case filter.UserID > 0 && pc.UserID != filter.UserID:
		default:
			out = append(out, c.view())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := len(out)
	if filter.PerPage > 0 {
		start := (max(filter.Page, 1) - 1) * filter.PerPage
		if start > len(out) {
			start = len(out)
		}
		end := min(start+filter.PerPage, len(out))
		out = out[start:end]
	}
	return out, total, nil
}

func (m *memoryStore) Snapshot(ctx context.Context, entry entries.Entry, keys []string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	schema, err := entries.SchemaFor(entry.Type)
	if err != nil {
		return nil, err
	}
	record, ok := m.live[entry]
	if !ok {
		return nil, entries.ErrNotFound
	}
	out := make(map[string]any)
	for _, k := range schema.Filter(keys) {
		out[k] = record[k]
	}
	return out, nil
}

func (c storedChange) view() PendingChange {
	pc := c.change
	pc.rawChange = c.rawChange
	hydrate(&pc, c.rawChange, c.rawOriginal, nil)
	return pc
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) Insert(ctx context.Context, change NewChange) (PendingChange, error) {
	c := t.store.newRecord(change.UserID, change.Entry, change.ChangeData, change.OriginalData)
	return c.view(), nil
}

func (t *memoryTx) Transition(ctx context.Context, id int64, to Status, reviewerID int64, notes *string) (PendingChange, error) {
	c, ok := t.store.changes[id]
	if !ok {
		return PendingChange{}, ErrNotFound
	}
	if c.change.Status != StatusPending {
		return PendingChange{}, &AlreadyReviewedError{ChangeID: id, Status: c.change.Status}
	}
	t.store.clock = t.store.clock.Add(time.Minute)
	at := t.store.clock
	c.change.Status = to
	c.change.ReviewedBy = &reviewerID
	c.change.ReviewedAt = &at
	c.change.ReviewNotes = notes
	c.change.UpdatedAt = at
	t.store.changes[id] = c
	return c.view(), nil
}

func (t *memoryTx) ApplyDiff(ctx context.Context, entry entries.Entry, raw []byte) (entries.Result, error) {
	data, err := entries.DecodeDiff(raw)
	if err != nil {
		return entries.Result{}, err
	}
	return t.ApplyDirect(ctx, entry, data)
}

func (t *memoryTx) ApplyDirect(ctx context.Context, entry entries.Entry, data map[string]any) (entries.Result, error) {
	schema, err := entries.SchemaFor(entry.Type)
	if err != nil {
		return entries.Result{}, err
	}
	values, err := schema.Coerce(data)
	if err != nil {
		return entries.Result{}, err
	}
	if len(values) == 0 {
		return entries.Result{Entry: entry}, nil
	}
	record, ok := t.store.live[entry]
	if !ok {
		return entries.Result{}, entries.ErrNotFound
	}
	for col, v := range values {
		record[col] = v
	}
	return entries.Result{Entry: entry, Columns: values.Columns()}, nil
}

func (t *memoryTx) BindIdempotencyKey(ctx context.Context, key, module string, changeID int64) error {
	if t.store.failBind != nil {
		return t.store.failBind
	}
	if t.store.idem == nil {
		return nil
	}
	return t.store.idem.bind(key, module, changeID)
}

func cloneValues(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]int64
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]int64)}
}

func (m *memoryIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[module+"/"+key]; ok {
		return shared.ErrIdempotencyConflict
	}
	m.keys[module+"/"+key] = 0
	return nil
}

func (m *memoryIdempotency) bind(key, module string, resourceID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[module+"/"+key]; !ok {
		return shared.ErrIdempotencyKeyMissing
	}
	m.keys[module+"/"+key] = resourceID
	return nil
}

func (m *memoryIdempotency) Resolve(ctx context.Context, key, module string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[module+"/"+key]
	if !ok || id == 0 {
		return 0, shared.ErrIdempotencyPending
	}
	return id, nil
}

func (m *memoryIdempotency) Delete(ctx context.Context, key, module string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, module+"/"+key)
	return nil
}

type countingMetrics struct {
	mu        sync.Mutex
	submitted map[string]int
	reviewed  map[string]int
	written   map[string]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{submitted: map[string]int{}, reviewed: map[string]int{}, written: map[string]int{}}
}

func (c *countingMetrics) ChangeSubmitted(entryType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitted[entryType]++
}

func (c *countingMetrics) ChangeReviewed(status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reviewed[status]++
}

func (c *countingMetrics) EntryWritten(entryType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written[entryType]++
}

type stubAssignments map[int64][]entries.Entry

func (s stubAssignments) IsAssigned(ctx context.Context, actorID int64, entry entries.Entry) (bool, error) {
	for _, e := range s[actorID] {
		if e == entry {
			return true, nil
		}
	}
	return false, nil
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(raw)
}

var errStoreDown = errors.New("store unavailable")
