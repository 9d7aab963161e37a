package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

const engagementColumns = `tracking_token, recipient, open_count, click_count,
	first_opened_at, last_opened_at, first_clicked_at, last_clicked_at,
	last_ip, last_user_agent, last_device_type, last_seen_at, updated_at`

// EngagementRepo implements tracking.EngagementStore against PostgreSQL.
type EngagementRepo struct{ db *sql.DB }

// NewEngagementRepo creates a Postgres-backed engagement repository.
func NewEngagementRepo(db *sql.DB) *EngagementRepo { return &EngagementRepo{db: db} }

func scanEngagement(row rowScanner) (*domain.EngagementRecord, error) {
	var (
		e        domain.EngagementRecord
		ip, ua   sql.NullString
		device   sql.NullString
		lastSeen sql.NullTime
	)
	err := row.Scan(&e.TrackingToken, &e.Recipient, &e.OpenCount, &e.ClickCount,
		&e.FirstOpenedAt, &e.LastOpenedAt, &e.FirstClickedAt, &e.LastClickedAt,
		&ip, &ua, &device, &lastSeen, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.LastClient = domain.ClientMetadata{
		IPAddress:  ip.String,
		UserAgent:  ua.String,
		DeviceType: device.String,
		SeenAt:     lastSeen.Time,
	}
	return &e, nil
}

func (r *EngagementRepo) Increment(ctx context.Context, token, recipient string, kind domain.EventKind, at time.Time) error {
	var query string
	switch kind {
	case domain.EventOpen:
		query = `
		INSERT INTO engagements (tracking_token, recipient, open_count, first_opened_at, last_opened_at, updated_at)
		VALUES ($1, $2, 1, $3, $3, NOW())
		ON CONFLICT (tracking_token) DO UPDATE SET
			open_count = engagements.open_count + 1,
			first_opened_at = COALESCE(engagements.first_opened_at, EXCLUDED.first_opened_at),
			last_opened_at = EXCLUDED.last_opened_at,
			updated_at = NOW()`
	case domain.EventClick:
		query = `
		INSERT INTO engagements (tracking_token, recipient, click_count, first_clicked_at, last_clicked_at, updated_at)
		VALUES ($1, $2, 1, $3, $3, NOW())
		ON CONFLICT (tracking_token) DO UPDATE SET
			click_count = engagements.click_count + 1,
			first_clicked_at = COALESCE(engagements.first_clicked_at, EXCLUDED.first_clicked_at),
			last_clicked_at = EXCLUDED.last_clicked_at,
			updated_at = NOW()`
	default:
		return tracking.ErrInvalidEventKind
	}

	if _, err := r.db.ExecContext(ctx, query, token, recipient, at); err != nil {
		return fmt.Errorf("upsert engagement %s: %w", kind, err)
	}
	return nil
}

func (r *EngagementRepo) SaveClientMetadata(ctx context.Context, token string, meta domain.ClientMetadata) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE engagements
		SET last_ip = $2, last_user_agent = $3, last_device_type = $4, last_seen_at = $5
		WHERE tracking_token = $1
	`, token, meta.IPAddress, meta.UserAgent, meta.DeviceType, meta.SeenAt)
	if err != nil {
		return fmt.Errorf("save client metadata: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return tracking.ErrEngagementNotFound
	}
	return nil
}

func (r *EngagementRepo) Get(ctx context.Context, token string) (*domain.EngagementRecord, error) {
	e, err := scanEngagement(r.db.QueryRowContext(ctx,
		`SELECT `+engagementColumns+` FROM engagements WHERE tracking_token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tracking.ErrEngagementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get engagement: %w", err)
	}
	return e, nil
}

func (r *EngagementRepo) GetMany(ctx context.Context, tokens []string) (map[string]domain.EngagementRecord, error) {
	out := make(map[string]domain.EngagementRecord, len(tokens))
	if len(tokens) == 0 {
		return out, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+engagementColumns+` FROM engagements WHERE tracking_token = ANY($1)`,
		pq.Array(tokens),
	)
	if err != nil {
		return nil, fmt.Errorf("get engagements: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		e, err := scanEngagement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		out[e.TrackingToken] = *e
	}
	return out, rows.Err()
}

func (r *EngagementRepo) Raise(ctx context.Context, token, recipient string, opens, clicks int) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO engagements (tracking_token, recipient, open_count, click_count, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tracking_token) DO UPDATE SET
			open_count = GREATEST(engagements.open_count, EXCLUDED.open_count),
			click_count = GREATEST(engagements.click_count, EXCLUDED.click_count),
			updated_at = NOW()
	`, token, recipient, opens, clicks)
	if err != nil {
		return fmt.Errorf("raise engagement counts: %w", err)
	}
	return nil
}
