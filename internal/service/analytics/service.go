package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/identity"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// BreakerConfig configures the circuit breakers guarding store reads.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and probes
// again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second, Interval: time.Minute}
}

// Aggregator builds campaign analytics reports. Safe for concurrent use.
type Aggregator struct {
	emails  EmailSource
	surveys SurveySource

	emailBreaker  *gobreaker.CircuitBreaker[[]domain.EmailRecord]
	surveyBreaker *gobreaker.CircuitBreaker[[]domain.SurveyResponse]
	now           func() time.Time
}

// NewAggregator creates an aggregator over the given sources.
func NewAggregator(emails EmailSource, surveys SurveySource, cfg BreakerConfig) *Aggregator {
	return &Aggregator{
		emails:        emails,
		surveys:       surveys,
		emailBreaker:  gobreaker.NewCircuitBreaker[[]domain.EmailRecord](breakerSettings("analytics-emails", cfg)),
		surveyBreaker: gobreaker.NewCircuitBreaker[[]domain.SurveyResponse](breakerSettings("analytics-surveys", cfg)),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func breakerSettings(name string, cfg BreakerConfig) gobreaker.Settings {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.Settings{
		Name:     name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller hanging up says nothing about the store.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("analytics circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
}

// CampaignReport computes the analytics report for campaignID, which may be
// given in any shape identity.Normalize understands.
func (a *Aggregator) CampaignReport(ctx context.Context, campaignID any) (*domain.CampaignAnalyticsReport, error) {
	id := identity.Normalize(campaignID)
	if strings.TrimSpace(id) == "" {
		metrics.AnalyticsReports.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCampaign
	}

	emails, err := a.emailBreaker.Execute(func() ([]domain.EmailRecord, error) {
		return a.emails.ListByCampaign(ctx, id)
	})
	if err != nil {
		return nil, a.unavailable("list campaign emails", id, err)
	}

	responses, err := a.surveyBreaker.Execute(func() ([]domain.SurveyResponse, error) {
		return a.surveys.ListResponses(ctx, domain.SurveyFilter{CampaignID: id})
	})
	if err != nil {
		return nil, a.unavailable("list survey responses", id, err)
	}

	report := &domain.CampaignAnalyticsReport{CampaignID: id, GeneratedAt: a.now()}

	report.TotalEmails = len(emails)
	for i := range emails {
		e := &emails[i]
		if e.Status.LeftSystem() {
			report.SentCount++
		}
		if e.OpenCount > 0 {
			report.OpenedCount++
		}
		if e.ClickCount > 0 {
			report.ClickedCount++
		}
	}

	for i := range responses {
		ref, shape := identity.Resolve(responses[i].CampaignID)
		if shape == identity.ShapeFallback {
			metrics.MalformedCampaignRefs.Inc()
			logger.Warn("malformed campaign reference on survey response",
				"response_id", responses[i].ID, "normalized", ref)
		}
		if ref != id {
			continue
		}
		report.SurveyResponseCount++
		if responses[i].Interested {
			report.InterestedCount++
		}
	}

	report.OpenRate = FormatRate(report.OpenedCount, report.SentCount)
	report.ClickRate = FormatRate(report.ClickedCount, report.SentCount)
	report.ResponseRate = FormatRate(report.SurveyResponseCount, report.TotalEmails)
	report.InterestedRate = FormatRate(report.InterestedCount, report.SurveyResponseCount)

	metrics.AnalyticsReports.WithLabelValues("ok").Inc()
	return report, nil
}

func (a *Aggregator) unavailable(op, campaignID string, err error) error {
	metrics.AnalyticsReports.WithLabelValues("unavailable").Inc()
	logger.Error("analytics read failed", "op", op, "campaign_id", campaignID, "err", err)
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
