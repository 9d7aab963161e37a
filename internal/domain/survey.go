package domain

import "time"

// SurveyResponse is one submitted survey form. CampaignID keeps whatever
// shape the producer sent: a bare string, a reference object carrying an
// "_id" field, or something else entirely. Compare it only through the
// identity package.
type SurveyResponse struct {
	ID             string    `json:"id" db:"id"`
	SurveyID       string    `json:"surveyId" db:"survey_id"`
	CampaignID     any       `json:"campaignId" db:"campaign_ref"`
	RespondentName string    `json:"respondentName" db:"respondent_name"`
	Contact        string    `json:"contact" db:"contact"`
	Interested     bool      `json:"interested" db:"interested"`
	Feedback       string    `json:"feedback" db:"feedback"`
	SubmittedAt    time.Time `json:"submittedAt" db:"submitted_at"`
}

// SurveyFilter narrows a survey response listing. CampaignID is compared in
// normalized form; stores that cannot do that exactly may return a superset.
type SurveyFilter struct {
	SurveyID   string
	CampaignID string
	Limit      int
}
