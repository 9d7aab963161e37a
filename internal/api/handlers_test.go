package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/repository/memory"
	"github.com/ignite/engagement-tracker/internal/service/analytics"
	"github.com/ignite/engagement-tracker/internal/service/email"
	"github.com/ignite/engagement-tracker/internal/service/survey"
	trackingsvc "github.com/ignite/engagement-tracker/internal/service/tracking"
	"github.com/ignite/engagement-tracker/internal/storage"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

// syncSink records events inline so assertions can follow the request.
type syncSink struct{ rec *trackingsvc.Recorder }

func (s syncSink) Submit(evt domain.EngagementEvent) {
	_, _ = s.rec.Record(context.Background(), evt)
}

type testServer struct {
	router  http.Handler
	archive *storage.Archive
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	emails := memory.NewEmailRepo()
	engagements := memory.NewEngagementRepo()
	surveys := memory.NewSurveyRepo()

	registry := trackingsvc.NewRegistry(emails, trackingsvc.GenerateToken)
	recorder := trackingsvc.NewRecorder(registry, engagements)

	archive, err := storage.New(config.StorageConfig{Type: config.StorageLog}, nil)
	require.NoError(t, err)

	h := NewHandlers(
		analytics.NewAggregator(emails, surveys, analytics.DefaultBreakerConfig()),
		email.NewService(emails, registry, trackingsvc.NewLinkBuilder("https://t.example.com")),
		survey.NewService(surveys),
		archive,
	)
	hc := NewHealthChecker(nil, nil, archive)
	router := SetupRoutes(h, hc, tracking.NewHandler(syncSink{rec: recorder}), RouterConfig{
		AllowedOrigins:    []string{"https://app.example.com"},
		RequestsPerMinute: 1000,
	})
	return &testServer{router: router, archive: archive}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)

	var env envelope
	if rr.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

func (s *testServer) register(t *testing.T, campaign any, recipient string) email.Registration {
	t.Helper()
	rr, env := s.do(t, http.MethodPost, "/api/emails", map[string]any{"recipient": recipient, "campaignId": campaign})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var reg email.Registration
	require.NoError(t, json.Unmarshal(env.Data, &reg))
	return reg
}

func TestCampaignAnalytics_EndToEnd(t *testing.T) {
	s := newTestServer(t)

	first := s.register(t, "cmp-1", "ann@example.com")
	s.register(t, "cmp-1", "bob@example.com")
	s.register(t, "cmp-2", "cy@example.com")

	rr, _ := s.do(t, http.MethodPatch, "/api/emails/"+first.Email.ID+"/status", map[string]string{"status": "sent"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// Two opens and a click on the sent email.
	for i := 0; i < 2; i++ {
		rr, _ = s.do(t, http.MethodGet, "/track/open/"+first.Email.TrackingToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "image/gif", rr.Header().Get("Content-Type"))
	}
	rr, _ = s.do(t, http.MethodGet, "/track/click/"+first.Email.TrackingToken+"?url=https%3A%2F%2Fexample.com%2Foffer", nil)
	require.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://example.com/offer", rr.Header().Get("Location"))

	// The survey form sends the campaign as a reference object.
	rr, _ = s.do(t, http.MethodPost, "/api/surveys/responses", map[string]any{
		"surveyId":   "srv-1",
		"campaignId": map[string]any{"_id": "cmp-1"},
		"interested": true,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr, env := s.do(t, http.MethodGet, "/api/campaigns/cmp-1/analytics", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.True(t, env.Success)

	var got campaignAnalyticsResponse
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "cmp-1", got.CampaignID)
	assert.Equal(t, deliveryMetrics{
		TotalEmails: 2, Sent: 1, Opened: 1, Clicked: 1,
		OpenRate: "100.0%", ClickRate: "100.0%",
	}, got.Metrics)
	assert.Equal(t, surveyMetrics{
		TotalResponses: 1, InterestedCount: 1,
		ResponseRate: "50.0%", InterestedRate: "100.0%",
	}, got.Survey)

	rr, env = s.do(t, http.MethodGet, "/api/emails/"+first.Email.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec domain.EmailRecord
	require.NoError(t, json.Unmarshal(env.Data, &rec))
	assert.Equal(t, 2, rec.OpenCount)
	assert.Equal(t, 1, rec.ClickCount)
}

func TestCampaignAnalytics_ResponseShape(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/api/campaigns/empty/analytics", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &raw))
	data := raw["data"].(map[string]any)
	m := data["metrics"].(map[string]any)
	for _, k := range []string{"totalEmails", "sent", "opened", "clicked", "openRate", "clickRate"} {
		assert.Contains(t, m, k)
	}
	sv := data["survey"].(map[string]any)
	for _, k := range []string{"totalResponses", "interestedCount", "responseRate", "interestedRate"} {
		assert.Contains(t, sv, k)
	}
	assert.Equal(t, "0%", m["openRate"])
	assert.Equal(t, "0%", sv["responseRate"])
}

func TestCampaignAnalytics_InvalidCampaign(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, http.MethodGet, "/api/campaigns/%20/analytics", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "invalid campaign id", env.Error)
}

type failingAnalytics struct{}

func (failingAnalytics) CampaignReport(context.Context, any) (*domain.CampaignAnalyticsReport, error) {
	return nil, fmt.Errorf("%w: list campaign emails: dial tcp 10.0.0.5:5432: connection refused", analytics.ErrUnavailable)
}

func TestCampaignAnalytics_Unavailable(t *testing.T) {
	h := NewHandlers(failingAnalytics{}, nil, nil, nil)
	router := SetupRoutes(h, NewHealthChecker(nil, nil, nil), nil, RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/cmp-1/analytics", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.False(t, env.Success)
	assert.Equal(t, "service temporarily unavailable", env.Error)
	assert.NotContains(t, rr.Body.String(), "10.0.0.5")
}

func TestEmails_Errors(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/api/emails/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr, env := s.do(t, http.MethodPost, "/api/emails", map[string]any{"recipient": "not an address", "campaignId": "cmp-1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, env.Success)

	reg := s.register(t, "cmp-1", "ann@example.com")
	assert.NotEmpty(t, reg.Email.TrackingToken)
	assert.Equal(t, "https://t.example.com/track/open/"+reg.Email.TrackingToken, reg.Links.OpenURL)
	assert.Contains(t, reg.Links.ClickURLTemplate, "{url}")

	rr, _ = s.do(t, http.MethodPatch, "/api/emails/"+reg.Email.ID+"/status", map[string]string{"status": "bounced-hard"})
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr, _ = s.do(t, http.MethodPatch, "/api/emails/"+reg.Email.ID+"/status", map[string]string{"status": "delivered"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/emails", bytes.NewBufferString("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSurveys_SubmitAndList(t *testing.T) {
	s := newTestServer(t)

	rr, env := s.do(t, http.MethodPost, "/api/surveys/responses", map[string]any{"campaignId": "cmp-1"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, env.Error, "surveyId")

	for _, ref := range []any{"cmp-1", map[string]any{"_id": "cmp-1"}, "cmp-2"} {
		rr, _ = s.do(t, http.MethodPost, "/api/surveys/responses", map[string]any{"surveyId": "srv-1", "campaignId": ref})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr, env = s.do(t, http.MethodGet, "/api/surveys/responses?surveyId=srv-1&campaignId=cmp-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var list []domain.SurveyResponse
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 2)

	rr, _ = s.do(t, http.MethodGet, "/api/surveys/responses?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, env = s.do(t, http.MethodGet, "/api/surveys/responses?surveyId=none", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", string(env.Data))
}

func TestTracking_InvalidRedirect(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/track/click/whatever?url=javascript:alert(1)", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unknown tokens still get the pixel.
	rr, _ = s.do(t, http.MethodGet, "/track/open/unknown-token", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestReconciliationLatest(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/api/reconciliation/latest", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, s.archive.Publish(context.Background(), &domain.ReconciliationReport{Scanned: 5}))

	rr, env := s.do(t, http.MethodGet, "/api/reconciliation/latest", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got struct {
		Key    string                      `json:"key"`
		Report domain.ReconciliationReport `json:"report"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, 5, got.Report.Scanned)
	assert.NotEmpty(t, got.Key)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	rr, _ := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var hs HealthStatus
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &hs))
	assert.Equal(t, "healthy", hs.Status)
	assert.Equal(t, "not_configured", hs.Checks["database"].Status)

	require.NoError(t, s.archive.Publish(context.Background(), &domain.ReconciliationReport{
		Divergences: []domain.Divergence{{TrackingToken: "t"}},
	}))
	rr, _ = s.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"degraded"`)

	rr, _ = s.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/emails", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example.com", rr.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/emails", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr = httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestDetermineOverallStatus(t *testing.T) {
	assert.Equal(t, "healthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"}, "redis": {Status: "not_configured"},
	}))
	assert.Equal(t, "degraded", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "up"}, "redis": {Status: "down"},
	}))
	assert.Equal(t, "unhealthy", determineOverallStatus(map[string]ComponentCheck{
		"database": {Status: "down"},
	}))
}
