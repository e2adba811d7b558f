package dedup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattjoyce/wxgate/internal/message"
)

// SQLiteCache keeps completed replies in the reply_cache table so they
// survive a restart inside the retention window. Rows are namespaced by app;
// expired rows are ignored on read and removed by PurgeExpired.
type SQLiteCache struct {
	db  *sql.DB
	app string
	ttl time.Duration
	now func() time.Time
}

func NewSQLiteCache(db *sql.DB, app string, ttl time.Duration) *SQLiteCache {
	return &SQLiteCache{db: db, app: app, ttl: ttl, now: time.Now}
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (message.Encoded, bool, error) {
	var (
		body    string
		encrypt bool
	)
	err := c.db.QueryRowContext(ctx, `
SELECT body, encrypt FROM reply_cache
WHERE app = ? AND key = ? AND expires_at > ?;
`, c.app, key, c.now().UnixMilli()).Scan(&body, &encrypt)
	if errors.Is(err, sql.ErrNoRows) {
		return message.Encoded{}, false, nil
	}
	if err != nil {
		return message.Encoded{}, false, fmt.Errorf("read reply cache: %w", err)
	}
	return message.Encoded{Text: body, Encrypt: encrypt}, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, key string, reply message.Encoded) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx, `
INSERT INTO reply_cache(app, key, body, encrypt, created_at, expires_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(app, key) DO UPDATE SET
  body = excluded.body,
  encrypt = excluded.encrypt,
  created_at = excluded.created_at,
  expires_at = excluded.expires_at;
`, c.app, key, reply.Text, reply.Encrypt, now.UTC().Format(time.RFC3339Nano), now.Add(c.ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("write reply cache: %w", err)
	}
	return nil
}

// PurgeExpired deletes every expired reply_cache row, for all apps.
func PurgeExpired(ctx context.Context, db *sql.DB, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM reply_cache WHERE expires_at <= ?;", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge reply cache: %w", err)
	}
	return res.RowsAffected()
}
