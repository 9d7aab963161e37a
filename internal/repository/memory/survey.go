package memory

import (
	"context"
	"sync"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/identity"
)

// SurveyRepo stores survey responses in submission order.
type SurveyRepo struct {
	mu        sync.RWMutex
	responses []domain.SurveyResponse
}

// NewSurveyRepo creates an empty survey repository.
func NewSurveyRepo() *SurveyRepo {
	return &SurveyRepo{}
}

func (r *SurveyRepo) Save(_ context.Context, resp *domain.SurveyResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses = append(r.responses, *resp)
	return nil
}

func (r *SurveyRepo) ListResponses(_ context.Context, f domain.SurveyFilter) ([]domain.SurveyResponse, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.SurveyResponse
	for _, resp := range r.responses {
		if f.SurveyID != "" && resp.SurveyID != f.SurveyID {
			continue
		}
		if f.CampaignID != "" && identity.Normalize(resp.CampaignID) != f.CampaignID {
			continue
		}
		out = append(out, resp)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}
