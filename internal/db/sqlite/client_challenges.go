package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iamwavecut/tool"

	"github.com/damoclesbot/damocles/internal/db"
)

func (c *sqliteClient) CreateChallenge(ctx context.Context, challenge *db.ChallengeAttempt) (*db.ChallengeAttempt, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	query := `
		INSERT INTO challenges (
			chat_id, user_id, token, challenge_message_id, join_message_id, attempts, created_at, expires_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id, user_id) DO UPDATE SET
			token = excluded.token,
			challenge_message_id = excluded.challenge_message_id,
			join_message_id = excluded.join_message_id,
			attempts = excluded.attempts,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`
	_, err := c.db.ExecContext(ctx, query,
		challenge.ChatID,
		challenge.UserID,
		challenge.Token,
		challenge.ChallengeMessageID,
		challenge.JoinMessageID,
		challenge.Attempts,
		challenge.CreatedAt,
		challenge.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return challenge, nil
}

func (c *sqliteClient) GetChallenge(ctx context.Context, chatID, userID int64) (*db.ChallengeAttempt, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var challenge db.ChallengeAttempt
	err := c.db.GetContext(ctx, &challenge, `
		SELECT chat_id, user_id, token, challenge_message_id, join_message_id, attempts, created_at, expires_at
		FROM challenges
		WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &challenge, nil
}

func (c *sqliteClient) SetChallengeMessageID(ctx context.Context, chatID, userID int64, messageID int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return tool.Err(c.db.ExecContext(ctx, `
		UPDATE challenges SET challenge_message_id = ? WHERE chat_id = ? AND user_id = ?
	`, messageID, chatID, userID))
}

// IncrementChallengeAttempts bumps the attempt counter in place and returns
// the post-increment value. The in-place UPDATE under the client mutex keeps
// concurrent wrong answers from losing each other's increments.
func (c *sqliteClient) IncrementChallengeAttempts(ctx context.Context, chatID, userID int64) (int, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `
		UPDATE challenges SET attempts = attempts + 1 WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, sql.ErrNoRows
	}

	var attempts int
	err = c.db.GetContext(ctx, &attempts, `
		SELECT attempts FROM challenges WHERE chat_id = ? AND user_id = ?
	`, chatID, userID)
	return attempts, err
}

func (c *sqliteClient) DeleteChallenge(ctx context.Context, chatID, userID int64) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	res, err := c.db.ExecContext(ctx, `DELETE FROM challenges WHERE chat_id = ? AND user_id = ?`, chatID, userID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (c *sqliteClient) CountChallenges(ctx context.Context) (int, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var count int
	err := c.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM challenges`)
	return count, err
}
