package activity

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaignsync/internal/config"
	"github.com/ignite/campaignsync/internal/storage"
)

func TestSlug(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Connection to Mailchimp verified.", "connection-to-mailchimp"},
		{"Webhook: campaign sent", "webhook-campaign-sent"},
		{"  ", ""},
		{"One", "one"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.text), tt.text)
	}
}

func TestMemoryKeepsNewest(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()
	require.NoError(t, m.Record(ctx, Entry{Text: "first"}))
	require.NoError(t, m.Record(ctx, Entry{Text: "second"}))
	require.NoError(t, m.Record(ctx, Entry{Text: "third", State: StateError}))

	got, err := m.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Text)
	assert.Equal(t, StateError, got[0].State)
	assert.Equal(t, "second", got[1].Text)
	assert.Equal(t, StateInfo, got[1].State)
	assert.NotEmpty(t, got[0].ID)

	got, err = m.List(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSQLRecordAndPrune(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewSQL(db, storage.DialectPostgres, 3)
	fixed := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO campaignsync_activity (id, logged_at, text, state, context, slug) VALUES ($1, $2, $3, $4, $5, $6)`)).
		WithArgs(sqlmock.AnyArg(), fixed, "Campaign scheduled for Monday", StateSuccess, "mailchimp", "campaign-scheduled-for").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM campaignsync_activity WHERE id NOT IN (SELECT id FROM campaignsync_activity ORDER BY logged_at DESC LIMIT $1)`)).
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = l.Record(context.Background(), Entry{Text: "Campaign scheduled for Monday", State: StateSuccess, Context: "mailchimp"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLList(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewSQL(db, storage.DialectSQLite, 0)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "logged_at", "text", "state", "context", "slug"}).
		AddRow("b", at, "second", "info", "campaignsync", "second").
		AddRow("a", at.Add(-time.Minute), "first", "error", "mailchimp", "first")
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, logged_at, text, state, context, slug FROM campaignsync_activity ORDER BY logged_at DESC LIMIT ?`)).
		WithArgs(DefaultKeep).
		WillReturnRows(rows)

	got, err := l.List(context.Background(), 1000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "mailchimp", got[1].Context)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOpenDisabled(t *testing.T) {
	l, err := Open(context.Background(), config.ActivityConfig{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, l)

	_, err = Open(context.Background(), config.ActivityConfig{Enabled: true, Driver: "oracle", DSN: "x"})
	assert.Error(t, err)
}
