package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bytemomo/narwhal/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Store is the mission-facing view of a Backend. A Store without a backend
// is valid: writes are no-ops and reads come back empty.
type Store struct {
	backend Backend
	log     *logrus.Entry
	now     func() time.Time
}

func NewStore(backend Backend, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{backend: backend, log: log, now: time.Now}
}

func (s *Store) Available() bool { return s != nil && s.backend != nil }

// Require reports ErrStoreUnavailable for callers that cannot degrade.
func (s *Store) Require() error {
	if !s.Available() {
		return domain.ErrStoreUnavailable
	}
	return nil
}

type planRecord struct {
	Plan      domain.Plan `json:"plan"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SavePlan replaces the mission's active plan, in state and in the store.
func (s *Store) SavePlan(ctx context.Context, state *domain.MissionState, plan domain.Plan) error {
	p := plan
	state.Plan = &p

	if !s.Available() {
		return nil
	}

	b, err := json.Marshal(planRecord{Plan: plan, UpdatedAt: s.clock()})
	if err != nil {
		return err
	}
	return s.backend.Put(ctx, NamespaceFor(state, CategoryPlan), ActivePlanKey, b)
}

// LoadPlan prefers the in-state plan and falls back to the stored snapshot.
func (s *Store) LoadPlan(ctx context.Context, state *domain.MissionState) (*domain.Plan, error) {
	if state.Plan != nil {
		return state.Plan, nil
	}
	if !s.Available() {
		return nil, nil
	}

	raw, ok, err := s.backend.Get(ctx, NamespaceFor(state, CategoryPlan), ActivePlanKey)
	if err != nil || !ok {
		return nil, err
	}
	var rec planRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode stored plan: %w", err)
	}
	return &rec.Plan, nil
}

// clock works on a nil Store so that degraded writes still get timestamps.
func (s *Store) clock() time.Time {
	if s == nil || s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// NewEntryKey returns a key that is never reused: a UTC timestamp plus a
// random suffix.
func NewEntryKey(now time.Time) string {
	return "entry-" + now.UTC().Format(time.RFC3339Nano) + "-" + uuid.New().String()[:8]
}

// AppendEntry records a new immutable memory entry in the state buffer and,
// when available, in the store.
func (s *Store) AppendEntry(ctx context.Context, state *domain.MissionState, category domain.MemoryCategory, content string, metadata map[string]any) (domain.MemoryEntry, error) {
	if err := category.Validate(); err != nil {
		return domain.MemoryEntry{}, err
	}

	now := s.clock()
	entry := domain.MemoryEntry{
		Key:       NewEntryKey(now),
		Timestamp: now,
		Category:  category,
		Content:   content,
		Metadata:  metadata,
	}
	state.Memory = append(state.Memory, entry)

	if !s.Available() {
		return entry, nil
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return entry, err
	}
	return entry, s.backend.Put(ctx, NamespaceFor(state, CategoryMemory), entry.Key, b)
}

// ListEntries merges the state buffer with stored entries. Duplicates are
// detected by key, or by content when an entry has no key, and the first
// occurrence wins.
func (s *Store) ListEntries(ctx context.Context, state *domain.MissionState) ([]domain.MemoryEntry, error) {
	combined := append([]domain.MemoryEntry(nil), state.Memory...)

	if s.Available() {
		items, err := s.backend.Search(ctx, NamespaceFor(state, CategoryMemory))
		if err != nil {
			return dedupe(combined), err
		}
		for _, it := range items {
			var e domain.MemoryEntry
			if err := json.Unmarshal(it.Value, &e); err != nil {
				s.log.WithFields(logrus.Fields{
					"key":   it.Key,
					"error": err,
				}).Warn("Skipping undecodable memory entry")
				continue
			}
			if e.Key == "" {
				e.Key = it.Key
			}
			combined = append(combined, e)
		}
	}
	return dedupe(combined), nil
}

func dedupe(entries []domain.MemoryEntry) []domain.MemoryEntry {
	seen := map[string]struct{}{}
	out := make([]domain.MemoryEntry, 0, len(entries))
	for _, e := range entries {
		id := e.Key
		if id == "" {
			id = fingerprint(e)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, e)
	}
	return out
}

// fingerprint is stable because encoding/json sorts map keys.
func fingerprint(e domain.MemoryEntry) string {
	b, _ := json.Marshal(struct {
		Category domain.MemoryCategory `json:"category"`
		Content  string                `json:"content"`
		Metadata map[string]any        `json:"metadata"`
	}{e.Category, e.Content, e.Metadata})
	return "content:" + string(b)
}
