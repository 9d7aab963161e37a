package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/service/tracking"
)

var emailCols = []string{"id", "recipient", "campaign_id", "tracking_token", "status",
	"open_count", "click_count", "last_opened_at", "last_clicked_at", "created_at", "updated_at"}

func TestEmailRepo_IncrementOpenIsSingleStatement(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	at := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectExec(`UPDATE emails SET open_count = open_count \+ 1, last_opened_at = \$2`).
		WithArgs("tok", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewEmailRepo(db)
	require.NoError(t, repo.IncrementEngagement(context.Background(), "tok", domain.EventOpen, at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepo_IncrementUnknownToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE emails SET click_count = click_count \+ 1`).
		WithArgs("nope", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewEmailRepo(db).IncrementEngagement(context.Background(), "nope", domain.EventClick, time.Now())
	assert.ErrorIs(t, err, tracking.ErrTokenNotResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepo_GetByToken(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM emails WHERE tracking_token = \$1`).
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows(emailCols).
			AddRow("e1", "a@example.com", "c1", "tok", "sent", 2, 1, now, nil, now, now))
	mock.ExpectQuery(`SELECT .+ FROM emails WHERE tracking_token = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(emailCols))

	repo := NewEmailRepo(db)
	e, err := repo.GetByToken(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "e1", e.ID)
	assert.Equal(t, domain.EmailSent, e.Status)
	assert.Equal(t, 2, e.OpenCount)
	require.NotNil(t, e.LastOpenedAt)
	assert.Nil(t, e.LastClickedAt)

	_, err = repo.GetByToken(context.Background(), "missing")
	assert.ErrorIs(t, err, tracking.ErrTokenNotResolved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmailRepo_AssignToken(t *testing.T) {
	t.Run("collision", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(`UPDATE emails SET tracking_token = \$2`).
			WithArgs("e1", "tok").
			WillReturnError(&pq.Error{Code: "23505"})

		_, err = NewEmailRepo(db).AssignToken(context.Background(), "e1", "tok")
		assert.ErrorIs(t, err, tracking.ErrDuplicateToken)
	})

	t.Run("already assigned", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(`UPDATE emails SET tracking_token = \$2`).
			WithArgs("e1", "new").
			WillReturnRows(sqlmock.NewRows([]string{"tracking_token"}))
		mock.ExpectQuery(`SELECT tracking_token FROM emails WHERE id = \$1`).
			WithArgs("e1").
			WillReturnRows(sqlmock.NewRows([]string{"tracking_token"}).AddRow("old"))

		tok, err := NewEmailRepo(db).AssignToken(context.Background(), "e1", "new")
		require.NoError(t, err)
		assert.Equal(t, "old", tok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown email", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(`UPDATE emails SET tracking_token`).
			WillReturnRows(sqlmock.NewRows([]string{"tracking_token"}))
		mock.ExpectQuery(`SELECT tracking_token FROM emails`).
			WillReturnRows(sqlmock.NewRows([]string{"tracking_token"}))

		_, err = NewEmailRepo(db).AssignToken(context.Background(), "nope", "tok")
		assert.ErrorIs(t, err, tracking.ErrEmailNotFound)
	})
}

func TestEmailRepo_SetStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE emails SET status = \$3`).
		WithArgs("e1", "queued", "sent").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := NewEmailRepo(db).SetStatus(context.Background(), "e1", domain.EmailQueued, domain.EmailSent)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngagementRepo_IncrementUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO engagements .+ ON CONFLICT \(tracking_token\) DO UPDATE SET\s+click_count = engagements.click_count \+ 1`).
		WithArgs("tok", "a@example.com", at).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewEngagementRepo(db).Increment(context.Background(), "tok", "a@example.com", domain.EventClick, at)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngagementRepo_GetMany(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()
	cols := []string{"tracking_token", "recipient", "open_count", "click_count",
		"first_opened_at", "last_opened_at", "first_clicked_at", "last_clicked_at",
		"last_ip", "last_user_agent", "last_device_type", "last_seen_at", "updated_at"}

	mock.ExpectQuery(`SELECT .+ FROM engagements WHERE tracking_token = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("t1", "a@example.com", 3, 0, now, now, nil, nil, "203.0.113.1", "ua", "desktop", now, now))

	out, err := NewEngagementRepo(db).GetMany(context.Background(), []string{"t1", "t2"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, 3, out["t1"].OpenCount)
	assert.Equal(t, "203.0.113.1", out["t1"].LastClient.IPAddress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEngagementRepo_RaiseUsesGreatest(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`open_count = GREATEST\(engagements.open_count, EXCLUDED.open_count\)`).
		WithArgs("tok", "a@example.com", 4, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewEngagementRepo(db).Raise(context.Background(), "tok", "a@example.com", 4, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyRepo_SaveStoresRawAndNormalizedReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO survey_responses`).
		WithArgs("r1", "s1", `{"_id":"camp-1"}`, "camp-1", "Ana", "ana@example.com", true, "", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewSurveyRepo(db).Save(context.Background(), &domain.SurveyResponse{
		ID: "r1", SurveyID: "s1", CampaignID: map[string]any{"_id": "camp-1"},
		RespondentName: "Ana", Contact: "ana@example.com", Interested: true, SubmittedAt: now,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSurveyRepo_ListDecodesReference(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	now := time.Now().UTC()
	cols := []string{"id", "survey_id", "campaign_ref", "respondent_name", "contact", "interested", "feedback", "submitted_at"}

	mock.ExpectQuery(`FROM survey_responses WHERE campaign_key = \$1 ORDER BY submitted_at LIMIT \$2`).
		WithArgs("camp-1", 10).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("r1", "s1", []byte(`{"_id":"camp-1"}`), "", "", true, "", now).
			AddRow("r2", "s1", []byte(`"camp-1"`), "", "", false, "", now))

	out, err := NewSurveyRepo(db).ListResponses(context.Background(), domain.SurveyFilter{CampaignID: "camp-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, map[string]any{"_id": "camp-1"}, out[0].CampaignID)
	assert.Equal(t, "camp-1", out[1].CampaignID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
