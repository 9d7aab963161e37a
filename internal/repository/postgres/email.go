package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

const emailColumns = `id, recipient, campaign_id, tracking_token, status,
	open_count, click_count, last_opened_at, last_clicked_at, created_at, updated_at`

// EmailRepo implements email.Repository, tracking.EmailStore and
// analytics.EmailSource against PostgreSQL.
type EmailRepo struct{ db *sql.DB }

// NewEmailRepo creates a Postgres-backed email repository.
func NewEmailRepo(db *sql.DB) *EmailRepo { return &EmailRepo{db: db} }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmail(row rowScanner) (*domain.EmailRecord, error) {
	var (
		e     domain.EmailRecord
		token sql.NullString
	)
	err := row.Scan(&e.ID, &e.Recipient, &e.CampaignID, &token, &e.Status,
		&e.OpenCount, &e.ClickCount, &e.LastOpenedAt, &e.LastClickedAt, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.TrackingToken = token.String
	return &e, nil
}

func (r *EmailRepo) Create(ctx context.Context, e *domain.EmailRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO emails (id, recipient, campaign_id, tracking_token, status, created_at, updated_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`, e.ID, e.Recipient, e.CampaignID, e.TrackingToken, e.Status, e.CreatedAt, e.UpdatedAt)
	if isUniqueViolation(err) {
		return tracking.ErrDuplicateToken
	}
	if err != nil {
		return fmt.Errorf("insert email: %w", err)
	}
	return nil
}

func (r *EmailRepo) Get(ctx context.Context, id string) (*domain.EmailRecord, error) {
	e, err := scanEmail(r.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.ErrEmailNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}
	return e, nil
}

func (r *EmailRepo) SetStatus(ctx context.Context, id string, from, to domain.EmailStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE emails SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("update email status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM emails WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	if !exists {
		return false, tracking.ErrEmailNotFound
	}
	return false, nil
}

func (r *EmailRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.EmailRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+emailColumns+` FROM emails WHERE campaign_id = $1 ORDER BY created_at`,
		campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list campaign emails: %w", err)
	}
	return collectEmails(rows)
}

func (r *EmailRepo) GetByToken(ctx context.Context, token string) (*domain.EmailRecord, error) {
	e, err := scanEmail(r.db.QueryRowContext(ctx, `SELECT `+emailColumns+` FROM emails WHERE tracking_token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.ErrTokenNotResolved
	}
	if err != nil {
		return nil, fmt.Errorf("get email by token: %w", err)
	}
	return e, nil
}

func (r *EmailRepo) AssignToken(ctx context.Context, emailID, token string) (string, error) {
	var assigned string
	err := r.db.QueryRowContext(ctx, `
		UPDATE emails SET tracking_token = $2, updated_at = NOW()
		WHERE id = $1 AND tracking_token IS NULL
		RETURNING tracking_token
	`, emailID, token).Scan(&assigned)
	switch {
	case err == nil:
		return assigned, nil
	case isUniqueViolation(err):
		return "", tracking.ErrDuplicateToken
	case !errors.Is(err, sql.ErrNoRows):
		return "", fmt.Errorf("assign tracking token: %w", err)
	}

	// Either the email is unknown or it already has a token.
	var existing sql.NullString
	err = r.db.QueryRowContext(ctx, `SELECT tracking_token FROM emails WHERE id = $1`, emailID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return "", tracking.ErrEmailNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read tracking token: %w", err)
	}
	return existing.String, nil
}

func (r *EmailRepo) IncrementEngagement(ctx context.Context, token string, kind domain.EventKind, at time.Time) error {
	var query string
	switch kind {
	case domain.EventOpen:
		query = `UPDATE emails SET open_count = open_count + 1, last_opened_at = $2, updated_at = NOW() WHERE tracking_token = $1`
	case domain.EventClick:
		query = `UPDATE emails SET click_count = click_count + 1, last_clicked_at = $2, updated_at = NOW() WHERE tracking_token = $1`
	default:
		return tracking.ErrInvalidEventKind
	}

	res, err := r.db.ExecContext(ctx, query, token, at)
	if err != nil {
		return fmt.Errorf("increment email %s count: %w", kind, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracking.ErrTokenNotResolved
	}
	return nil
}

func (r *EmailRepo) ListEngaged(ctx context.Context, afterToken string, limit int) ([]domain.EmailRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+emailColumns+`
		FROM emails
		WHERE tracking_token > $1 AND (open_count > 0 OR click_count > 0)
		ORDER BY tracking_token
		LIMIT $2
	`, afterToken, limit)
	if err != nil {
		return nil, fmt.Errorf("list engaged emails: %w", err)
	}
	return collectEmails(rows)
}

func (r *EmailRepo) RaiseCounts(ctx context.Context, token string, opens, clicks int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE emails
		SET open_count = GREATEST(open_count, $2), click_count = GREATEST(click_count, $3), updated_at = NOW()
		WHERE tracking_token = $1
	`, token, opens, clicks)
	if err != nil {
		return fmt.Errorf("raise email counts: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracking.ErrTokenNotResolved
	}
	return nil
}

func collectEmails(rows *sql.Rows) ([]domain.EmailRecord, error) {
	defer rows.Close()
	var out []domain.EmailRecord
	for rows.Next() {
		e, err := scanEmail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan email: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
