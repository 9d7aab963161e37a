package email

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/identity"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

// RegisterInput is what the composition pipeline knows about a message
// before it is sent. CampaignID may be any reference shape.
type RegisterInput struct {
	Recipient  string `json:"recipient"`
	CampaignID any    `json:"campaignId"`
}

// Links are the tracking URLs to embed in the message body.
type Links struct {
	OpenURL string `json:"openUrl"`
	// ClickURLTemplate carries a literal {url} placeholder for the target.
	ClickURLTemplate string `json:"clickUrlTemplate"`
}

// Registration is the result of Register.
type Registration struct {
	Email *domain.EmailRecord `json:"email"`
	Links Links               `json:"links"`
}

// Service implements email lifecycle logic.
type Service struct {
	repo   Repository
	tokens TokenIssuer
	links  tracking.LinkBuilder
}

// NewService creates an email service.
func NewService(repo Repository, tokens TokenIssuer, links tracking.LinkBuilder) *Service {
	return &Service{repo: repo, tokens: tokens, links: links}
}

// Register creates a queued email record and issues its tracking token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	addr, err := mail.ParseAddress(in.Recipient)
	if err != nil {
		return nil, fmt.Errorf("%w: recipient: %v", ErrInvalidInput, err)
	}
	campaignID := identity.Normalize(in.CampaignID)
	if campaignID == "" {
		return nil, fmt.Errorf("%w: campaignId is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	e := &domain.EmailRecord{
		ID:         uuid.New().String(),
		Recipient:  addr.Address,
		CampaignID: campaignID,
		Status:     domain.EmailQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create email: %w", err)
	}

	token, err := s.tokens.IssueToken(ctx, e.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tracking token: %w", err)
	}
	e.TrackingToken = token

	logger.Info("email registered", "email_id", e.ID, "campaign_id", campaignID, "recipient", e.Recipient)
	return &Registration{
		Email: e,
		Links: Links{
			OpenURL:          s.links.OpenURL(token),
			ClickURLTemplate: s.links.ClickURL(token, "") + "{url}",
		},
	}, nil
}

// Get returns a single email record.
func (s *Service) Get(ctx context.Context, id string) (*domain.EmailRecord, error) {
	return s.repo.Get(ctx, id)
}

// UpdateStatus applies a delivery status change. Moving to sent requires a
// tracking token.
func (s *Service) UpdateStatus(ctx context.Context, id string, next domain.EmailStatus) (*domain.EmailRecord, error) {
	if !next.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, next)
	}
	if next == domain.EmailSent && e.TrackingToken == "" {
		return nil, fmt.Errorf("%w: email %s has no tracking token", ErrInvalidTransition, id)
	}

	ok, err := s.repo.SetStatus(ctx, id, e.Status, next)
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
	}

	logger.Info("email status changed", "email_id", id, "from", string(e.Status), "to", string(next))
	e.Status = next
	e.UpdatedAt = time.Now().UTC()
	return e, nil
}
