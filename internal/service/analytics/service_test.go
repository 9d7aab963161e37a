package analytics_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/repository/memory"
	"github.com/ignite/engagement-tracker/internal/service/analytics"
)

func seedCampaign(t *testing.T, repo *memory.EmailRepo, campaignID string, n int, status domain.EmailStatus) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repo.Create(context.Background(), &domain.EmailRecord{
			ID:         fmt.Sprintf("%s-%s-%d", campaignID, status, i),
			Recipient:  fmt.Sprintf("r%d@example.com", i),
			CampaignID: campaignID,
			Status:     status,
			CreatedAt:  time.Now(),
		}))
	}
}

func TestCampaignReport_MixedReferenceShapes(t *testing.T) {
	ctx := context.Background()
	emails := memory.NewEmailRepo()
	surveys := memory.NewSurveyRepo()
	seedCampaign(t, emails, "abc123", 23, domain.EmailSent)

	require.NoError(t, surveys.Save(ctx, &domain.SurveyResponse{ID: "1", CampaignID: "abc123", Interested: true}))
	require.NoError(t, surveys.Save(ctx, &domain.SurveyResponse{ID: "2", CampaignID: map[string]any{"_id": "abc123"}}))
	require.NoError(t, surveys.Save(ctx, &domain.SurveyResponse{ID: "3", CampaignID: "other"}))

	agg := analytics.NewAggregator(emails, surveys, analytics.DefaultBreakerConfig())
	report, err := agg.CampaignReport(ctx, "abc123")
	require.NoError(t, err)

	assert.Equal(t, "abc123", report.CampaignID)
	assert.Equal(t, 23, report.TotalEmails)
	assert.Equal(t, 23, report.SentCount)
	assert.Equal(t, 2, report.SurveyResponseCount)
	assert.Equal(t, 1, report.InterestedCount)
	assert.Equal(t, "8.7%", report.ResponseRate)
	assert.Equal(t, "50.0%", report.InterestedRate)
}

func TestCampaignReport_ReferenceObjectAsRequest(t *testing.T) {
	emails := memory.NewEmailRepo()
	seedCampaign(t, emails, "abc123", 2, domain.EmailSent)
	agg := analytics.NewAggregator(emails, memory.NewSurveyRepo(), analytics.DefaultBreakerConfig())

	report, err := agg.CampaignReport(context.Background(), map[string]any{"_id": "abc123"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalEmails)
}

func TestCampaignReport_CountsEngagementAndSentStatuses(t *testing.T) {
	ctx := context.Background()
	emails := memory.NewEmailRepo()
	seedCampaign(t, emails, "c1", 2, domain.EmailQueued)
	seedCampaign(t, emails, "c1", 1, domain.EmailFailed)
	seedCampaign(t, emails, "c1", 1, domain.EmailBouncedHard)
	for i, id := range []string{"c1-sent-0", "c1-sent-1", "c1-sent-2", "c1-sent-3"} {
		tok := fmt.Sprintf("tok-%d", i)
		require.NoError(t, emails.Create(ctx, &domain.EmailRecord{ID: id, CampaignID: "c1", Status: domain.EmailSent, TrackingToken: tok}))
		if i < 2 {
			require.NoError(t, emails.IncrementEngagement(ctx, tok, domain.EventOpen, time.Now()))
		}
		if i == 0 {
			require.NoError(t, emails.IncrementEngagement(ctx, tok, domain.EventClick, time.Now()))
		}
	}

	agg := analytics.NewAggregator(emails, memory.NewSurveyRepo(), analytics.DefaultBreakerConfig())
	report, err := agg.CampaignReport(ctx, "c1")
	require.NoError(t, err)

	assert.Equal(t, 8, report.TotalEmails)
	assert.Equal(t, 5, report.SentCount)
	assert.Equal(t, 2, report.OpenedCount)
	assert.Equal(t, 1, report.ClickedCount)
	assert.Equal(t, "40.0%", report.OpenRate)
	assert.Equal(t, "20.0%", report.ClickRate)
	assert.Equal(t, "0.0%", report.ResponseRate)
	assert.Equal(t, "0%", report.InterestedRate)
}

func TestCampaignReport_NothingSent(t *testing.T) {
	emails := memory.NewEmailRepo()
	seedCampaign(t, emails, "c1", 3, domain.EmailQueued)
	agg := analytics.NewAggregator(emails, memory.NewSurveyRepo(), analytics.DefaultBreakerConfig())

	report, err := agg.CampaignReport(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "0%", report.OpenRate)
	assert.Equal(t, "0%", report.ClickRate)
}

func TestCampaignReport_InvalidCampaign(t *testing.T) {
	agg := analytics.NewAggregator(memory.NewEmailRepo(), memory.NewSurveyRepo(), analytics.DefaultBreakerConfig())
	for _, id := range []any{nil, "", "   "} {
		_, err := agg.CampaignReport(context.Background(), id)
		assert.ErrorIs(t, err, analytics.ErrInvalidCampaign)
	}
}

type failingEmails struct{ calls int }

func (f *failingEmails) ListByCampaign(context.Context, string) ([]domain.EmailRecord, error) {
	f.calls++
	return nil, errors.New("pq: connection refused")
}

func TestCampaignReport_StoreFailureIsUnavailable(t *testing.T) {
	src := &failingEmails{}
	agg := analytics.NewAggregator(src, memory.NewSurveyRepo(), analytics.BreakerConfig{
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
	})

	for i := 0; i < 2; i++ {
		_, err := agg.CampaignReport(context.Background(), "c1")
		assert.ErrorIs(t, err, analytics.ErrUnavailable)
	}

	_, err := agg.CampaignReport(context.Background(), "c1")
	assert.ErrorIs(t, err, analytics.ErrUnavailable)
	assert.Contains(t, err.Error(), gobreaker.ErrOpenState.Error())
	assert.Equal(t, 2, src.calls, "open breaker must not reach the store")
}

func TestFormatRate(t *testing.T) {
	cases := []struct {
		num, den int
		want     string
	}{
		{0, 0, "0%"},
		{5, 0, "0%"},
		{0, 8, "0.0%"},
		{2, 23, "8.7%"},
		{1, 2, "50.0%"},
		{3, 3, "100.0%"},
		{1, 3, "33.3%"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, analytics.FormatRate(c.num, c.den), "%d/%d", c.num, c.den)
	}
}
