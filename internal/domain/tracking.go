package domain

import "time"

// EventKind enumerates the engagement events a tracking request can carry.
type EventKind string

const (
	EventOpen  EventKind = "open"
	EventClick EventKind = "click"
)

// Valid reports whether k is a known event kind.
func (k EventKind) Valid() bool {
	return k == EventOpen || k == EventClick
}

// ClientMetadata is the best-effort network origin and client signature of
// the last tracking request. Informational only.
type ClientMetadata struct {
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	DeviceType string    `json:"deviceType,omitempty"`
	SeenAt     time.Time `json:"seenAt"`
}

// EngagementEvent is a single inbound open or click against a tracking token.
type EngagementEvent struct {
	Token      string         `json:"token"`
	Kind       EventKind      `json:"kind"`
	TargetURL  string         `json:"targetUrl,omitempty"`
	Client     ClientMetadata `json:"client"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// EngagementRecord mirrors open/click activity per tracking token. It is
// stored independently of EmailRecord; under normal operation its counters
// equal the email's counters for the same token.
type EngagementRecord struct {
	TrackingToken string `json:"trackingToken" db:"tracking_token"`
	Recipient     string `json:"recipient" db:"recipient"`

	OpenCount      int        `json:"openCount" db:"open_count"`
	ClickCount     int        `json:"clickCount" db:"click_count"`
	FirstOpenedAt  *time.Time `json:"firstOpenedAt" db:"first_opened_at"`
	LastOpenedAt   *time.Time `json:"lastOpenedAt" db:"last_opened_at"`
	FirstClickedAt *time.Time `json:"firstClickedAt" db:"first_clicked_at"`
	LastClickedAt  *time.Time `json:"lastClickedAt" db:"last_clicked_at"`

	LastClient ClientMetadata `json:"lastClient"`
	UpdatedAt  time.Time      `json:"updatedAt" db:"updated_at"`
}

// LastActivity returns the latest open or click time, or nil.
func (e *EngagementRecord) LastActivity() *time.Time {
	return latest(e.LastOpenedAt, e.LastClickedAt)
}
