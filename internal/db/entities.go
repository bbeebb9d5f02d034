package db

import (
	"time"
)

type (
	// ChallengeAttempt is one outstanding verification for a single user in a
	// single chat. At most one row exists per (chat, user); existence implies
	// the user is restricted and an expiry action is armed under Token.
	ChallengeAttempt struct {
		ChatID             int64     `db:"chat_id"`
		UserID             int64     `db:"user_id"`
		Token              string    `db:"token"`
		ChallengeMessageID int       `db:"challenge_message_id"`
		JoinMessageID      int       `db:"join_message_id"`
		Attempts           int       `db:"attempts"`
		CreatedAt          time.Time `db:"created_at"`
		ExpiresAt          time.Time `db:"expires_at"`
	}

	// BlacklistEntry marks a user as a known bad actor. A nil ExpiresAt means
	// the entry is permanent. The table is externally maintained and read-only
	// at runtime.
	BlacklistEntry struct {
		UserID    int64      `db:"user_id"`
		ExpiresAt *time.Time `db:"expires_at"`
		Reason    string     `db:"reason"`
		AddedAt   time.Time  `db:"added_at"`
	}
)

// ActiveAt reports whether the entry should be honored at the given time.
// Entries with a past expiry are treated as absent.
func (e *BlacklistEntry) ActiveAt(now time.Time) bool {
	if e == nil {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}
