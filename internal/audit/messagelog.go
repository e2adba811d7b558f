package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mattjoyce/wxgate/internal/center"
)

// timeLayout is fixed width so created_at sorts and compares as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	maxReplyBytes      = 16 * 1024
)

var _ center.Observer = (*MessageLog)(nil)

// MessageLog stores one message_log row per callback outcome.
type MessageLog struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMessageLog(db *sql.DB, logger *slog.Logger) *MessageLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &MessageLog{db: db, logger: logger}
}

// Insert appends r. Reply text is truncated to 16KiB.
func (l *MessageLog) Insert(ctx context.Context, r Record) error {
	if r.ID == "" {
		return fmt.Errorf("record id is empty")
	}
	reply := r.Reply
	if len(reply) > maxReplyBytes {
		reply = reply[:maxReplyBytes]
	}

	_, err := l.db.ExecContext(ctx, `
INSERT INTO message_log(
  id, app, dedup_key, kind, event, from_user, source, status, body_hash, reply, error, created_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, r.ID, r.App, r.Key, r.Kind, nullable(r.Event), nullable(r.FromUser), nullable(r.Source), r.Status,
		nullable(r.BodyHash), nullable(reply), nullable(r.Error), r.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("insert message_log: %w", err)
	}
	return nil
}

// Recent returns the newest rows first, optionally for one app. limit <= 0
// means 50; it is capped at 500.
func (l *MessageLog) Recent(ctx context.Context, app string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	var (
		where []string
		args  []any
	)
	if app != "" {
		where = append(where, "app = ?")
		args = append(args, app)
	}
	query := `
SELECT id, app, dedup_key, kind, event, from_user, source, status, body_hash, reply, error, created_at
FROM message_log`
	if len(where) > 0 {
		query += "\nWHERE " + strings.Join(where, " AND ")
	}
	query += "\nORDER BY created_at DESC, rowid DESC\nLIMIT ?;"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query message_log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var event, fromUser, source, hash, reply, errS sql.NullString
		var createdAt string
		if err := rows.Scan(&r.ID, &r.App, &r.Key, &r.Kind, &event, &fromUser, &source, &r.Status,
			&hash, &reply, &errS, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message_log: %w", err)
		}
		r.Event = event.String
		r.FromUser = fromUser.String
		r.Source = source.String
		r.BodyHash = hash.String
		r.Reply = reply.String
		r.Error = errS.String
		if t, err := time.Parse(timeLayout, createdAt); err == nil {
			r.CreatedAt = t
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message_log: %w", err)
	}
	return out, nil
}

// Prune deletes rows created before cutoff and returns how many went.
func (l *MessageLog) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := l.db.ExecContext(ctx, `DELETE FROM message_log WHERE created_at < ?;`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("prune message_log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune message_log: %w", err)
	}
	return n, nil
}

func (l *MessageLog) OnRequest(context.Context, string, []byte) {}

func (l *MessageLog) OnResponse(ctx context.Context, ex center.Exchange) {
	l.record(ctx, FromExchange(ex))
}

func (l *MessageLog) OnFailure(ctx context.Context, f center.Failure) {
	l.record(ctx, FromFailure(f))
}

func (l *MessageLog) record(ctx context.Context, r Record) {
	if err := l.Insert(context.WithoutCancel(ctx), r); err != nil {
		l.logger.Warn("message log write failed", "app", r.App, "key", r.Key, "error", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
