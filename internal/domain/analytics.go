package domain

import "time"

// CampaignAnalyticsReport aggregates delivery and survey activity for one
// campaign. It is computed on every request and never persisted. Rates are
// percentage strings with one decimal place, or "0%" for a zero denominator.
type CampaignAnalyticsReport struct {
	CampaignID string `json:"campaignId"`

	TotalEmails  int    `json:"totalEmails"`
	SentCount    int    `json:"sent"`
	OpenedCount  int    `json:"opened"`
	ClickedCount int    `json:"clicked"`
	OpenRate     string `json:"openRate"`
	ClickRate    string `json:"clickRate"`

	SurveyResponseCount int    `json:"totalResponses"`
	InterestedCount     int    `json:"interestedCount"`
	ResponseRate        string `json:"responseRate"`
	InterestedRate      string `json:"interestedRate"`

	GeneratedAt time.Time `json:"generatedAt"`
}
