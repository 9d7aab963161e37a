// Package api serves the campaign analytics, survey and email endpoints.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/httputil"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	"github.com/ignite/engagement-tracker/internal/service/analytics"
	"github.com/ignite/engagement-tracker/internal/service/email"
	"github.com/ignite/engagement-tracker/internal/service/survey"
	"github.com/ignite/engagement-tracker/internal/storage"
)

// AnalyticsService computes campaign reports.
type AnalyticsService interface {
	CampaignReport(ctx context.Context, campaignID any) (*domain.CampaignAnalyticsReport, error)
}

// EmailService manages email records.
type EmailService interface {
	Register(ctx context.Context, in email.RegisterInput) (*email.Registration, error)
	Get(ctx context.Context, id string) (*domain.EmailRecord, error)
	UpdateStatus(ctx context.Context, id string, next domain.EmailStatus) (*domain.EmailRecord, error)
}

// SurveyService stores and lists survey responses.
type SurveyService interface {
	Submit(ctx context.Context, in survey.SubmitInput) (*domain.SurveyResponse, error)
	List(ctx context.Context, surveyID string, campaignID any, limit int) ([]domain.SurveyResponse, error)
}

// ReportReader exposes the latest reconciliation report.
type ReportReader interface {
	Latest() (*domain.ReconciliationReport, string, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	analytics AnalyticsService
	emails    EmailService
	surveys   SurveyService
	reports   ReportReader
}

// NewHandlers creates the API handlers. reports may be nil.
func NewHandlers(a AnalyticsService, e EmailService, s SurveyService, reports ReportReader) *Handlers {
	return &Handlers{analytics: a, emails: e, surveys: s, reports: reports}
}

type deliveryMetrics struct {
	TotalEmails int    `json:"totalEmails"`
	Sent        int    `json:"sent"`
	Opened      int    `json:"opened"`
	Clicked     int    `json:"clicked"`
	OpenRate    string `json:"openRate"`
	ClickRate   string `json:"clickRate"`
}

type surveyMetrics struct {
	TotalResponses  int    `json:"totalResponses"`
	InterestedCount int    `json:"interestedCount"`
	ResponseRate    string `json:"responseRate"`
	InterestedRate  string `json:"interestedRate"`
}

type campaignAnalyticsResponse struct {
	CampaignID  string          `json:"campaignId"`
	Metrics     deliveryMetrics `json:"metrics"`
	Survey      surveyMetrics   `json:"survey"`
	GeneratedAt time.Time       `json:"generatedAt"`
}

// GetCampaignAnalytics returns delivery and survey metrics for a campaign.
//
//	GET /api/campaigns/{campaignId}/analytics
func (h *Handlers) GetCampaignAnalytics(w http.ResponseWriter, r *http.Request) {
	campaignID := pathParam(r, "campaignId")

	report, err := h.analytics.CampaignReport(r.Context(), campaignID)
	switch {
	case errors.Is(err, analytics.ErrInvalidCampaign):
		httputil.BadRequest(w, "invalid campaign id")
		return
	case errors.Is(err, analytics.ErrUnavailable):
		httputil.ServiceUnavailable(w, err)
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, campaignAnalyticsResponse{
		CampaignID: report.CampaignID,
		Metrics: deliveryMetrics{
			TotalEmails: report.TotalEmails,
			Sent:        report.SentCount,
			Opened:      report.OpenedCount,
			Clicked:     report.ClickedCount,
			OpenRate:    report.OpenRate,
			ClickRate:   report.ClickRate,
		},
		Survey: surveyMetrics{
			TotalResponses:  report.SurveyResponseCount,
			InterestedCount: report.InterestedCount,
			ResponseRate:    report.ResponseRate,
			InterestedRate:  report.InterestedRate,
		},
		GeneratedAt: report.GeneratedAt,
	})
}

// SubmitSurveyResponse stores a survey form submission.
//
//	POST /api/surveys/responses
func (h *Handlers) SubmitSurveyResponse(w http.ResponseWriter, r *http.Request) {
	var in survey.SubmitInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	resp, err := h.surveys.Submit(r.Context(), in)
	if errors.Is(err, survey.ErrInvalidResponse) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, resp)
}

// ListSurveyResponses lists responses filtered by surveyId and campaignId.
//
//	GET /api/surveys/responses?surveyId=&campaignId=&limit=
func (h *Handlers) ListSurveyResponses(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	var campaignID any
	if v := q.Get("campaignId"); v != "" {
		campaignID = v
	}

	responses, err := h.surveys.List(r.Context(), q.Get("surveyId"), campaignID, limit)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if responses == nil {
		responses = []domain.SurveyResponse{}
	}
	httputil.OK(w, responses)
}

// RegisterEmail creates a queued email and returns its tracking links.
//
//	POST /api/emails
func (h *Handlers) RegisterEmail(w http.ResponseWriter, r *http.Request) {
	var in email.RegisterInput
	if !httputil.Decode(w, r, &in) {
		return
	}

	reg, err := h.emails.Register(r.Context(), in)
	if errors.Is(err, email.ErrInvalidInput) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, reg)
}

// GetEmail returns one email record.
//
//	GET /api/emails/{id}
func (h *Handlers) GetEmail(w http.ResponseWriter, r *http.Request) {
	rec, err := h.emails.Get(r.Context(), pathParam(r, "id"))
	if errors.Is(err, email.ErrNotFound) {
		httputil.NotFound(w, "email not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, rec)
}

type statusUpdateRequest struct {
	Status domain.EmailStatus `json:"status"`
}

// UpdateEmailStatus moves an email through its delivery lifecycle.
//
//	PATCH /api/emails/{id}/status
func (h *Handlers) UpdateEmailStatus(w http.ResponseWriter, r *http.Request) {
	var req statusUpdateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	rec, err := h.emails.UpdateStatus(r.Context(), pathParam(r, "id"), req.Status)
	switch {
	case errors.Is(err, email.ErrNotFound):
		httputil.NotFound(w, "email not found")
	case errors.Is(err, email.ErrInvalidInput):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, email.ErrInvalidTransition):
		httputil.Conflict(w, err.Error())
	case err != nil:
		httputil.InternalError(w, err)
	default:
		logger.Info("email status updated", "email_id", rec.ID, "status", string(rec.Status))
		httputil.OK(w, rec)
	}
}

// GetLatestReconciliation returns the most recent reconciliation report.
//
//	GET /api/reconciliation/latest
func (h *Handlers) GetLatestReconciliation(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		httputil.NotFound(w, "reconciliation reports are not kept by this process")
		return
	}
	report, key, err := h.reports.Latest()
	if errors.Is(err, storage.ErrNoReport) {
		httputil.NotFound(w, "no reconciliation report yet")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"key": key, "report": report})
}

// pathParam returns an unescaped chi URL parameter.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
