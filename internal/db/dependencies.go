package db

import (
	"context"
	"time"
)

type Client interface {
	Close() error

	CreateChallenge(ctx context.Context, challenge *ChallengeAttempt) (*ChallengeAttempt, error)
	GetChallenge(ctx context.Context, chatID, userID int64) (*ChallengeAttempt, error)
	SetChallengeMessageID(ctx context.Context, chatID, userID int64, messageID int) error
	IncrementChallengeAttempts(ctx context.Context, chatID, userID int64) (int, error)
	// DeleteChallenge reports whether a row was actually removed. Callers use
	// the result as the authoritative "I resolved it" signal, so a challenge
	// is never banned twice by racing resolution paths.
	DeleteChallenge(ctx context.Context, chatID, userID int64) (bool, error)
	CountChallenges(ctx context.Context) (int, error)

	GetBlacklistEntry(ctx context.Context, userID int64) (*BlacklistEntry, error)
	IsBlacklisted(ctx context.Context, userID int64, now time.Time) (bool, error)
	AddBlacklistEntry(ctx context.Context, entry *BlacklistEntry) error

	IsScreened(ctx context.Context, chatID, userID int64) (bool, error)
	MarkScreened(ctx context.Context, chatID, userID int64) error
}
