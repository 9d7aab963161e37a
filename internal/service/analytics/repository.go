package analytics

import (
	"context"

	"github.com/ignite/engagement-tracker/internal/domain"
)

// EmailSource reads the email records of a campaign.
type EmailSource interface {
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.EmailRecord, error)
}

// SurveySource reads survey responses. Implementations may pre-filter on
// f.CampaignID but are allowed to return a superset; the aggregator always
// re-filters on the normalized campaign reference.
type SurveySource interface {
	ListResponses(ctx context.Context, f domain.SurveyFilter) ([]domain.SurveyResponse, error)
}
