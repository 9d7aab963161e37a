package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

// EmailRepo stores email records keyed by id with a unique token index.
// It implements tracking.EmailStore, email.Repository and
// analytics.EmailSource.
type EmailRepo struct {
	mu      sync.RWMutex
	byID    map[string]*domain.EmailRecord
	byToken map[string]string
}

// NewEmailRepo creates an empty email repository.
func NewEmailRepo() *EmailRepo {
	return &EmailRepo{
		byID:    make(map[string]*domain.EmailRecord),
		byToken: make(map[string]string),
	}
}

func (r *EmailRepo) Create(_ context.Context, e *domain.EmailRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.TrackingToken != "" {
		if _, taken := r.byToken[e.TrackingToken]; taken {
			return tracking.ErrDuplicateToken
		}
		r.byToken[e.TrackingToken] = e.ID
	}
	cp := *e
	r.byID[e.ID] = &cp
	return nil
}

func (r *EmailRepo) Get(_ context.Context, id string) (*domain.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, tracking.ErrEmailNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *EmailRepo) SetStatus(_ context.Context, id string, from, to domain.EmailStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return false, tracking.ErrEmailNotFound
	}
	if e.Status != from {
		return false, nil
	}
	e.Status = to
	e.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *EmailRepo) ListByCampaign(_ context.Context, campaignID string) ([]domain.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EmailRecord
	for _, e := range r.byID {
		if e.CampaignID == campaignID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *EmailRepo) GetByToken(_ context.Context, token string) (*domain.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byToken[token]
	if !ok {
		return nil, tracking.ErrTokenNotResolved
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *EmailRepo) AssignToken(_ context.Context, emailID, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[emailID]
	if !ok {
		return "", tracking.ErrEmailNotFound
	}
	if e.TrackingToken != "" {
		return e.TrackingToken, nil
	}
	if _, taken := r.byToken[token]; taken {
		return "", tracking.ErrDuplicateToken
	}
	e.TrackingToken = token
	e.UpdatedAt = time.Now().UTC()
	r.byToken[token] = emailID
	return token, nil
}

func (r *EmailRepo) IncrementEngagement(_ context.Context, token string, kind domain.EventKind, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return tracking.ErrTokenNotResolved
	}
	e := r.byID[id]
	ts := at
	switch kind {
	case domain.EventOpen:
		e.OpenCount++
		e.LastOpenedAt = &ts
	case domain.EventClick:
		e.ClickCount++
		e.LastClickedAt = &ts
	default:
		return tracking.ErrInvalidEventKind
	}
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *EmailRepo) ListEngaged(_ context.Context, afterToken string, limit int) ([]domain.EmailRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.EmailRecord
	for token, id := range r.byToken {
		if token <= afterToken {
			continue
		}
		e := r.byID[id]
		if e.OpenCount > 0 || e.ClickCount > 0 {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackingToken < out[j].TrackingToken })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *EmailRepo) RaiseCounts(_ context.Context, token string, opens, clicks int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[token]
	if !ok {
		return tracking.ErrTokenNotResolved
	}
	e := r.byID[id]
	e.OpenCount = max(e.OpenCount, opens)
	e.ClickCount = max(e.ClickCount, clicks)
	e.UpdatedAt = time.Now().UTC()
	return nil
}
