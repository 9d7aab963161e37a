package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/identity"
)

// SurveyRepo implements survey.Repository and analytics.SurveySource.
// The raw campaign reference is kept as JSONB; campaign_key holds its
// normalized form for indexed pre-filtering.
type SurveyRepo struct{ db *sql.DB }

// NewSurveyRepo creates a Postgres-backed survey repository.
func NewSurveyRepo(db *sql.DB) *SurveyRepo { return &SurveyRepo{db: db} }

func (r *SurveyRepo) Save(ctx context.Context, s *domain.SurveyResponse) error {
	ref, err := json.Marshal(s.CampaignID)
	if err != nil {
		return fmt.Errorf("encode campaign reference: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO survey_responses
			(id, survey_id, campaign_ref, campaign_key, respondent_name, contact, interested, feedback, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.SurveyID, string(ref), identity.Normalize(s.CampaignID),
		s.RespondentName, s.Contact, s.Interested, s.Feedback, s.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert survey response: %w", err)
	}
	return nil
}

func (r *SurveyRepo) ListResponses(ctx context.Context, f domain.SurveyFilter) ([]domain.SurveyResponse, error) {
	var (
		where []string
		args  []any
	)
	if f.SurveyID != "" {
		args = append(args, f.SurveyID)
		where = append(where, fmt.Sprintf("survey_id = $%d", len(args)))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		where = append(where, fmt.Sprintf("campaign_key = $%d", len(args)))
	}

	query := `SELECT id, survey_id, campaign_ref, respondent_name, contact, interested, feedback, submitted_at
		FROM survey_responses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY submitted_at"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list survey responses: %w", err)
	}
	defer rows.Close()

	var out []domain.SurveyResponse
	for rows.Next() {
		var (
			s   domain.SurveyResponse
			ref []byte
		)
		if err := rows.Scan(&s.ID, &s.SurveyID, &ref, &s.RespondentName, &s.Contact, &s.Interested, &s.Feedback, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan survey response: %w", err)
		}
		if len(ref) > 0 {
			if err := json.Unmarshal(ref, &s.CampaignID); err != nil {
				s.CampaignID = json.RawMessage(ref)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
