package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

// EngagementRepo implements tracking.EngagementStore in memory.
type EngagementRepo struct {
	mu      sync.RWMutex
	records map[string]*domain.EngagementRecord
}

// NewEngagementRepo creates an empty engagement repository.
func NewEngagementRepo() *EngagementRepo {
	return &EngagementRepo{records: make(map[string]*domain.EngagementRecord)}
}

// upsert returns the record for token, creating it if needed. Caller holds mu.
func (r *EngagementRepo) upsert(token, recipient string) *domain.EngagementRecord {
	rec, ok := r.records[token]
	if !ok {
		rec = &domain.EngagementRecord{TrackingToken: token, Recipient: recipient}
		r.records[token] = rec
	}
	return rec
}

func (r *EngagementRepo) Increment(_ context.Context, token, recipient string, kind domain.EventKind, at time.Time) error {
	if !kind.Valid() {
		return tracking.ErrInvalidEventKind
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.upsert(token, recipient)
	ts := at
	if kind == domain.EventOpen {
		rec.OpenCount++
		if rec.FirstOpenedAt == nil {
			rec.FirstOpenedAt = &ts
		}
		rec.LastOpenedAt = &ts
	} else {
		rec.ClickCount++
		if rec.FirstClickedAt == nil {
			rec.FirstClickedAt = &ts
		}
		rec.LastClickedAt = &ts
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *EngagementRepo) SaveClientMetadata(_ context.Context, token string, meta domain.ClientMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[token]
	if !ok {
		return tracking.ErrEngagementNotFound
	}
	rec.LastClient = meta
	return nil
}

func (r *EngagementRepo) Get(_ context.Context, token string) (*domain.EngagementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[token]
	if !ok {
		return nil, tracking.ErrEngagementNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *EngagementRepo) GetMany(_ context.Context, tokens []string) (map[string]domain.EngagementRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]domain.EngagementRecord, len(tokens))
	for _, t := range tokens {
		if rec, ok := r.records[t]; ok {
			out[t] = *rec
		}
	}
	return out, nil
}

func (r *EngagementRepo) Raise(_ context.Context, token, recipient string, opens, clicks int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.upsert(token, recipient)
	rec.OpenCount = max(rec.OpenCount, opens)
	rec.ClickCount = max(rec.ClickCount, clicks)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}
