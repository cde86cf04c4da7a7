package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/config"
)

var recordColumns = []string{"id", "type", "recipient", "content", "status", "created_at", "sent_at", "error_message"}

func newMockRepo(t *testing.T, dialect string) (*NotificationRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err, "unable to open the mock database connection")
	t.Cleanup(func() { _ = db.Close() })
	return NewNotificationRepository(db, dialect), mock
}

func TestSaveAssignsID(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := model.NewRecord(model.ChannelEmail, "a@b.com", "Hi", model.StatusSent, nil, now)

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO notifications (type,recipient,content,status,created_at,sent_at,error_message) VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id")).
		WithArgs("EMAIL", "a@b.com", "Hi", "SENT", now, sql.NullTime{Time: now, Valid: true}, sql.NullString{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(42)))

	require.NoError(t, repo.Save(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveWrapsErrors(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	rec := model.NewRecord(model.ChannelRealtime, "orders", "x", model.StatusFailed, errors.New("down"), time.Now())

	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnError(errors.New("connection refused"))

	err := repo.Save(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to save notification record")
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSaveUsesQuestionPlaceholdersOnSQLite(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverSQLite)
	rec := model.NewRecord(model.ChannelQueue, "bob", "EMAIL: hi", model.StatusQueued, nil, time.Now())

	mock.ExpectQuery(regexp.QuoteMeta("VALUES (?,?,?,?,?,?,?) RETURNING id")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))

	require.NoError(t, repo.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByTypeAndStatus(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(7), "EMAIL", "a@b.com", "Hi", "FAILED", created, nil, "smtp down")
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, type, recipient, content, status, created_at, sent_at, error_message FROM notifications WHERE type = $1 AND status = $2 ORDER BY created_at DESC, id DESC")).
		WithArgs("EMAIL", "FAILED").
		WillReturnRows(rows)

	got, err := repo.FindByTypeAndStatus(context.Background(), model.ChannelEmail, model.StatusFailed)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, model.StatusFailed, got[0].Status)
	assert.Nil(t, got[0].SentAt)
	assert.Equal(t, "smtp down", got[0].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRecentByRecipientAppliesLimit(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	sent := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(recordColumns).
		AddRow(int64(2), "QUEUE", "bob", "EMAIL: hi", "QUEUED", sent, nil, nil).
		AddRow(int64(1), "EMAIL", "bob", "Hi", "SENT", sent.Add(-time.Hour), sent.Add(-time.Hour), nil)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE recipient = $1 ORDER BY created_at DESC, id DESC LIMIT 5")).
		WithArgs("bob").
		WillReturnRows(rows)

	got, err := repo.FindRecentByRecipient(context.Background(), "bob", 5)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.NotNil(t, got[1].SentAt)
	assert.Empty(t, got[1].ErrorMessage)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindFailedReturnsEmptySlice(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE status = $1")).
		WithArgs("FAILED").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	got, err := repo.FindFailed(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestFindFailedSQLiteDialectWithLimit(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverSQLite)
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, type, recipient, content, status, created_at, sent_at, error_message FROM notifications WHERE status = ? ORDER BY created_at DESC, id DESC LIMIT 5")).
		WithArgs("FAILED").
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := repo.FindFailed(context.Background(), 5)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByCreatedAtBetween(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE created_at >= $1 AND created_at < $2")).
		WithArgs(from, to).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err := repo.FindByCreatedAtBetween(context.Background(), from, to)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCountByStatus(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT count(*) FROM notifications WHERE status = $1")).
		WithArgs("QUEUED").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(3)))

	n, err := repo.CountByStatus(context.Background(), model.StatusQueued)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCountByTypeAndDateRange(t *testing.T) {
	repo, mock := newMockRepo(t, config.DriverPostgres)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT count(*) FROM notifications WHERE type = $1 AND created_at >= $2 AND created_at < $3")).
		WithArgs("REALTIME", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(11)))

	n, err := repo.CountByTypeAndDateRange(context.Background(), model.ChannelRealtime, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(11), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
