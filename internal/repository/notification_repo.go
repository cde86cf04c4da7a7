package repository

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/pkg/errors"

	"notifyrouter/internal/model"
	"notifyrouter/pkg/config"
)

const notificationsTable = "notifications"

var notificationColumns = []string{
	"id", "type", "recipient", "content", "status", "created_at", "sent_at", "error_message",
}

// Filter narrows a notification query. Zero fields are ignored.
type Filter struct {
	Type      model.ChannelType
	Status    model.Status
	Recipient string
	From      time.Time
	To        time.Time
	Limit     uint64
}

type NotificationRepository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

// NewNotificationRepository builds a repository for the given dialect (postgres or sqlite).
func NewNotificationRepository(db *sql.DB, dialect string) *NotificationRepository {
	var placeholder sq.PlaceholderFormat = sq.Dollar
	if dialect == config.DriverSQLite {
		placeholder = sq.Question
	}
	return &NotificationRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(placeholder),
	}
}

// Save inserts the record and stores the generated id on it.
func (r *NotificationRepository) Save(ctx context.Context, rec *model.NotificationRecord) error {
	wrapMsg := "unable to save notification record"

	var errMsg sql.NullString
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}
	var sentAt sql.NullTime
	if rec.SentAt != nil {
		sentAt = sql.NullTime{Time: *rec.SentAt, Valid: true}
	}

	statement, args, err := r.sb.
		Insert(notificationsTable).
		Columns("type", "recipient", "content", "status", "created_at", "sent_at", "error_message").
		Values(string(rec.Type), rec.Recipient, rec.Content, string(rec.Status), rec.CreatedAt, sentAt, errMsg).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, wrapMsg)
	}

	if err := r.db.QueryRowContext(ctx, statement, args...).Scan(&rec.ID); err != nil {
		return errors.Wrap(err, wrapMsg)
	}
	return nil
}

// Find returns matching records, newest first.
func (r *NotificationRepository) Find(ctx context.Context, f Filter) ([]model.NotificationRecord, error) {
	wrapMsg := "unable to query notification records"

	query := r.sb.Select(notificationColumns...).From(notificationsTable)
	query = applyFilter(query, f).OrderBy("created_at DESC", "id DESC")
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	statement, args, err := query.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}

	rows, err := r.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	defer rows.Close()

	records := []model.NotificationRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, wrapMsg)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, wrapMsg)
	}
	return records, nil
}

func (r *NotificationRepository) FindByType(ctx context.Context, t model.ChannelType) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{Type: t})
}

func (r *NotificationRepository) FindByRecipient(ctx context.Context, recipient string) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{Recipient: recipient})
}

func (r *NotificationRepository) FindByStatus(ctx context.Context, status model.Status) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{Status: status})
}

func (r *NotificationRepository) FindByTypeAndStatus(ctx context.Context, t model.ChannelType, status model.Status) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{Type: t, Status: status})
}

// FindByCreatedAtBetween returns records created in [from, to).
func (r *NotificationRepository) FindByCreatedAtBetween(ctx context.Context, from, to time.Time) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{From: from, To: to})
}

// FindFailed returns the newest failed records; limit 0 returns all of them.
func (r *NotificationRepository) FindFailed(ctx context.Context, limit uint64) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{Status: model.StatusFailed, Limit: limit})
}

// FindRecentByRecipient returns at most limit records for the recipient, newest first.
func (r *NotificationRepository) FindRecentByRecipient(ctx context.Context, recipient string, limit uint64) ([]model.NotificationRecord, error) {
	return r.Find(ctx, Filter{Recipient: recipient, Limit: limit})
}

func (r *NotificationRepository) CountByStatus(ctx context.Context, status model.Status) (int64, error) {
	return r.count(ctx, Filter{Status: status}, "unable to count notifications by status")
}

// CountByTypeAndDateRange counts records of one channel created in [from, to).
func (r *NotificationRepository) CountByTypeAndDateRange(ctx context.Context, t model.ChannelType, from, to time.Time) (int64, error) {
	return r.count(ctx, Filter{Type: t, From: from, To: to}, "unable to count notifications by type and date range")
}

func (r *NotificationRepository) count(ctx context.Context, f Filter, wrapMsg string) (int64, error) {
	statement, args, err := applyFilter(r.sb.Select("count(*)").From(notificationsTable), f).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, statement, args...).Scan(&total); err != nil {
		return 0, errors.Wrap(err, wrapMsg)
	}
	return total, nil
}

func applyFilter(query sq.SelectBuilder, f Filter) sq.SelectBuilder {
	if f.Type != "" {
		query = query.Where(sq.Eq{"type": string(f.Type)})
	}
	if f.Status != "" {
		query = query.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.Recipient != "" {
		query = query.Where(sq.Eq{"recipient": f.Recipient})
	}
	if !f.From.IsZero() {
		query = query.Where(sq.GtOrEq{"created_at": f.From})
	}
	if !f.To.IsZero() {
		query = query.Where(sq.Lt{"created_at": f.To})
	}
	return query
}

func scanRecord(rows *sql.Rows) (model.NotificationRecord, error) {
	var (
		rec    model.NotificationRecord
		typ    string
		status string
		sentAt sql.NullTime
		errMsg sql.NullString
	)
	err := rows.Scan(&rec.ID, &typ, &rec.Recipient, &rec.Content, &status, &rec.CreatedAt, &sentAt, &errMsg)
	if err != nil {
		return rec, err
	}
	rec.Type = model.ChannelType(typ)
	rec.Status = model.Status(status)
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	rec.ErrorMessage = errMsg.String
	return rec, nil
}
