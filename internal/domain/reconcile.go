package domain

import "time"

// Divergence describes an email whose counters disagree with its engagement
// record after the grace window.
type Divergence struct {
	TrackingToken    string `json:"trackingToken"`
	Recipient        string `json:"recipient"`
	EmailOpens       int    `json:"emailOpens"`
	EmailClicks      int    `json:"emailClicks"`
	EngagementOpens  int    `json:"engagementOpens"`
	EngagementClicks int    `json:"engagementClicks"`
	Missing          bool   `json:"missing"`
	Repaired         bool   `json:"repaired"`
}

// ReconciliationReport summarizes one reconciliation pass.
type ReconciliationReport struct {
	StartedAt   time.Time    `json:"startedAt"`
	FinishedAt  time.Time    `json:"finishedAt"`
	Scanned     int          `json:"scanned"`
	Skipped     int          `json:"skipped"`
	Divergences []Divergence `json:"divergences"`
}
