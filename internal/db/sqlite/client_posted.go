package sqlite

import (
	"context"
	"time"

	"github.com/iamwavecut/tool"
)

func (c *sqliteClient) IsScreened(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM posted_users WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	return count > 0, err
}

func (c *sqliteClient) MarkScreened(ctx context.Context, chatID, userID int64) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return tool.Err(c.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO posted_users (chat_id, user_id, screened_at) VALUES (?, ?, ?)
	`, chatID, userID, time.Now()))
}
