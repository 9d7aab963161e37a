package survey

import (
	"context"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// Repository defines the data access contract for survey responses.
type Repository interface {
	Save(ctx context.Context, r *domain.SurveyResponse) error
	ListResponses(ctx context.Context, f domain.SurveyFilter) ([]domain.SurveyResponse, error)
}
