package notification

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `
CREATE TABLE IF NOT EXISTS notifications (
id                 UUID PRIMARY KEY,
title              TEXT NOT NULL,
body               TEXT NOT NULL,
kind               TEXT NOT NULL DEFAULT 'info',
audience           TEXT NOT NULL DEFAULT 'all',
is_read            BOOLEAN NOT NULL DEFAULT FALSE,
sent_via_messaging BOOLEAN NOT NULL DEFAULT FALSE,
sent_via_email     BOOLEAN NOT NULL DEFAULT FALSE,
created_at         TIMESTAMPTZ NOT NULL,
sent_at            TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS notifications_display_idx ON notifications (is_read, created_at DESC);
`

const notificationColumns = `id, title, body, kind, audience, is_read, sent_via_messaging, sent_via_email, created_at, sent_at`

const insertNotification = `
INSERT INTO notifications (id, title, body, kind, audience, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + notificationColumns

const selectNotification = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

const listNotifications = `
SELECT ` + notificationColumns + `
FROM notifications
WHERE ($1::text IS NULL OR kind = $1)
ORDER BY is_read ASC, created_at DESC
`

const markRead = `UPDATE notifications SET is_read = TRUE WHERE id = $1`

const deleteNotification = `DELETE FROM notifications WHERE id = $1`

const markSent = `
UPDATE notifications
SET sent_via_messaging = sent_via_messaging OR $2,
sent_via_email = sent_via_email OR $3,
sent_at = $4
WHERE id = $1
`

type PostgresRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create notifications table: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Create(ctx context.Context, title, body string, kind Kind, audience Audience) (Notification, error) {
	row := r.pool.QueryRow(ctx, insertNotification,
		uuid.NewString(),
		title,
		body,
		string(ParseKind(string(kind))),
		string(ParseAudience(string(audience))),
		r.now(),
	)
	n, err := scanNotification(row)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Notification{}, ErrNotFound
	}
	n, err := scanNotification(r.pool.QueryRow(ctx, selectNotification, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, fmt.Errorf("select notification: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) List(ctx context.Context, kind *Kind) ([]Notification, error) {
	var filter *string
	if kind != nil {
		k := string(*kind)
		filter = &k
	}
	rows, err := r.pool.Query(ctx, listNotifications, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := []Notification{}
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkRead(ctx context.Context, id string) (bool, error) {
	return r.execByID(ctx, markRead, id)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) (bool, error) {
	return r.execByID(ctx, deleteNotification, id)
}

func (r *PostgresRepository) MarkSent(ctx context.Context, id string, messagingSent, emailSent bool) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, markSent, id, messagingSent, emailSent, r.now())
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// execByID treats malformed ids the same as unknown ones.
func (r *PostgresRepository) execByID(ctx context.Context, query, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func scanNotification(row pgx.Row) (Notification, error) {
	var (
		n        Notification
		kind     string
		audience string
	)
	if err := row.Scan(&n.ID, &n.Title, &n.Body, &kind, &audience, &n.IsRead,
		&n.SentViaMessagingChannel, &n.SentViaEmailChannel, &n.CreatedAt, &n.SentAt); err != nil {
		return Notification{}, err
	}
	n.Kind = ParseKind(kind)
	n.Audience = ParseAudience(audience)
	return n, nil
}

var ErrNotConfigured = errors.New("postgres repository requires a non-nil pool")

func MustRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return NewPostgresRepository(pool), nil
}
