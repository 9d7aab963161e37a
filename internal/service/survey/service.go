package survey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/identity"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

const (
	maxNameLength     = 200
	maxContactLength  = 320
	maxFeedbackLength = 5000
	defaultListLimit  = 500
)

// SubmitInput is a survey form submission. CampaignID is kept in whatever
// shape the form sent it.
type SubmitInput struct {
	SurveyID       string `json:"surveyId"`
	CampaignID     any    `json:"campaignId"`
	RespondentName string `json:"respondentName"`
	Contact        string `json:"contact"`
	Interested     bool   `json:"interested"`
	Feedback       string `json:"feedback"`
}

// Service implements survey response intake.
type Service struct {
	repo Repository
}

// NewService creates a survey service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Submit validates and stores a response.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*domain.SurveyResponse, error) {
	in.SurveyID = strings.TrimSpace(in.SurveyID)
	switch {
	case in.SurveyID == "":
		return nil, fmt.Errorf("%w: surveyId is required", ErrInvalidResponse)
	case len(in.RespondentName) > maxNameLength:
		return nil, fmt.Errorf("%w: respondentName too long", ErrInvalidResponse)
	case len(in.Contact) > maxContactLength:
		return nil, fmt.Errorf("%w: contact too long", ErrInvalidResponse)
	case len(in.Feedback) > maxFeedbackLength:
		return nil, fmt.Errorf("%w: feedback too long", ErrInvalidResponse)
	}

	if _, shape := identity.Resolve(in.CampaignID); shape == identity.ShapeFallback {
		logger.Warn("survey response with malformed campaign reference", "survey_id", in.SurveyID)
	}

	r := &domain.SurveyResponse{
		ID:             uuid.New().String(),
		SurveyID:       in.SurveyID,
		CampaignID:     in.CampaignID,
		RespondentName: strings.TrimSpace(in.RespondentName),
		Contact:        strings.TrimSpace(in.Contact),
		Interested:     in.Interested,
		Feedback:       in.Feedback,
		SubmittedAt:    time.Now().UTC(),
	}
	if err := s.repo.Save(ctx, r); err != nil {
		return nil, fmt.Errorf("save survey response: %w", err)
	}
	return r, nil
}

// List returns responses filtered by survey and campaign; empty filters match
// everything. campaignID may be any reference shape.
func (s *Service) List(ctx context.Context, surveyID string, campaignID any, limit int) ([]domain.SurveyResponse, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	f := domain.SurveyFilter{SurveyID: surveyID, CampaignID: identity.Normalize(campaignID), Limit: limit}
	out, err := s.repo.ListResponses(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list survey responses: %w", err)
	}
	if f.CampaignID == "" {
		return out, nil
	}
	// Stores may return a superset.
	filtered := out[:0]
	for _, r := range out {
		if identity.Normalize(r.CampaignID) == f.CampaignID {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}
