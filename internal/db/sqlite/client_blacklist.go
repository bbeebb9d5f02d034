package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iamwavecut/tool"

	"github.com/damoclesbot/damocles/internal/db"
)

func (c *sqliteClient) GetBlacklistEntry(ctx context.Context, userID int64) (*db.BlacklistEntry, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var entry db.BlacklistEntry
	err := c.db.GetContext(ctx, &entry, `
		SELECT user_id, expires_at, reason, added_at FROM blacklist WHERE user_id = ?
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (c *sqliteClient) IsBlacklisted(ctx context.Context, userID int64, now time.Time) (bool, error) {
	entry, err := c.GetBlacklistEntry(ctx, userID)
	if err != nil {
		return false, err
	}
	return entry.ActiveAt(now), nil
}

func (c *sqliteClient) AddBlacklistEntry(ctx context.Context, entry *db.BlacklistEntry) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return tool.Err(c.db.ExecContext(ctx, `
		INSERT INTO blacklist (user_id, expires_at, reason, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			expires_at = excluded.expires_at,
			reason = excluded.reason,
			added_at = excluded.added_at
	`, entry.UserID, entry.ExpiresAt, entry.Reason, entry.AddedAt))
}
