package domain

import "time"

// EmailStatus enumerates the delivery lifecycle of a single outbound email.
type EmailStatus string

const (
	EmailQueued      EmailStatus = "queued"
	EmailSent        EmailStatus = "sent"
	EmailFailed      EmailStatus = "failed"
	EmailBouncedSoft EmailStatus = "bounced-soft"
	EmailBouncedHard EmailStatus = "bounced-hard"
)

// Valid reports whether s is a known status.
func (s EmailStatus) Valid() bool {
	switch s {
	case EmailQueued, EmailSent, EmailFailed, EmailBouncedSoft, EmailBouncedHard:
		return true
	}
	return false
}

// IsTerminal returns true once the email can no longer change status.
func (s EmailStatus) IsTerminal() bool {
	return s == EmailFailed || s == EmailBouncedSoft || s == EmailBouncedHard
}

// LeftSystem returns true if the message was handed to the recipient's
// mail server, regardless of what happened afterwards.
func (s EmailStatus) LeftSystem() bool {
	return s == EmailSent || s == EmailBouncedSoft || s == EmailBouncedHard
}

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
func (s EmailStatus) CanTransitionTo(next EmailStatus) bool {
	switch s {
	case EmailQueued:
		return next == EmailSent || next == EmailFailed
	case EmailSent:
		return next == EmailBouncedSoft || next == EmailBouncedHard
	}
	return false
}

// EmailRecord is one sent (or queued) message. The tracking token is set
// once before the message leaves the system and never changes afterwards.
// Open/click counters only move through the engagement recorder.
type EmailRecord struct {
	ID            string      `json:"id" db:"id"`
	Recipient     string      `json:"recipient" db:"recipient"`
	CampaignID    string      `json:"campaignId" db:"campaign_id"`
	TrackingToken string      `json:"trackingToken,omitempty" db:"tracking_token"`
	Status        EmailStatus `json:"status" db:"status"`

	OpenCount     int        `json:"openCount" db:"open_count"`
	ClickCount    int        `json:"clickCount" db:"click_count"`
	LastOpenedAt  *time.Time `json:"lastOpenedAt" db:"last_opened_at"`
	LastClickedAt *time.Time `json:"lastClickedAt" db:"last_clicked_at"`

	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// LastActivity returns the latest open or click time, or nil.
func (e *EmailRecord) LastActivity() *time.Time {
	return latest(e.LastOpenedAt, e.LastClickedAt)
}

func latest(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.After(*a):
		return b
	}
	return a
}
