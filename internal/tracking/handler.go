package tracking

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/engagement-tracker/internal/domain"
	trackingsvc "github.com/ignite/engagement-tracker/internal/service/tracking"
)

// 1x1 transparent GIF
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x2c,
	0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x44, 0x01, 0x00, 0x3b,
}

// EventSink accepts engagement events without blocking the caller.
type EventSink interface {
	Submit(evt domain.EngagementEvent)
}

type Handler struct {
	sink EventSink
	now  func() time.Time
}

func NewHandler(sink EventSink) *Handler {
	return &Handler{sink: sink, now: func() time.Time { return time.Now().UTC() }}
}

// Routes returns a standalone router for the tracking binary.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Register(r)
	r.Get("/health", h.HandleHealth)
	return r
}

// Register mounts the pixel and redirect endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/track/open/{token}", h.HandleOpen)
	r.Get("/track/click/{token}", h.HandleClick)
}

// HandleOpen always answers with the pixel, whatever the token.
func (h *Handler) HandleOpen(w http.ResponseWriter, r *http.Request) {
	if token := chi.URLParam(r, "token"); plausibleToken(token) {
		h.sink.Submit(h.event(r, token, domain.EventOpen, ""))
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	target, ok := redirectTarget(r.URL.Query().Get("url"))
	if !ok {
		http.Error(w, "invalid redirect target", http.StatusBadRequest)
		return
	}

	if token := chi.URLParam(r, "token"); plausibleToken(token) {
		h.sink.Submit(h.event(r, token, domain.EventClick, target))
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) event(r *http.Request, token string, kind domain.EventKind, target string) domain.EngagementEvent {
	now := h.now()
	ua := r.UserAgent()
	return domain.EngagementEvent{
		Token:     token,
		Kind:      kind,
		TargetURL: target,
		Client: domain.ClientMetadata{
			IPAddress:  realIP(r),
			UserAgent:  ua,
			DeviceType: detectDevice(ua),
			SeenAt:     now,
		},
		OccurredAt: now,
	}
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.WriteHeader(http.StatusOK)
	w.Write(pixelGIF)
}

func plausibleToken(token string) bool {
	return token != "" && len(token) <= trackingsvc.MaxTokenLength
}

// redirectTarget accepts only absolute http(s) URLs with a host.
func redirectTarget(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return u.String(), true
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
