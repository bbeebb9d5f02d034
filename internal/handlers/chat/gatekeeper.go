package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"
	log "github.com/sirupsen/logrus"

	"github.com/damoclesbot/damocles/internal/bot"
	"github.com/damoclesbot/damocles/internal/config"
	"github.com/damoclesbot/damocles/internal/db"
	"github.com/damoclesbot/damocles/internal/flood"
	"github.com/damoclesbot/damocles/internal/sched"
)

const (
	maxChallengeAttempts = 3

	staleJoinCutoff         = 120 * time.Second
	rejectBanDuration       = 24 * time.Hour
	dispatchFailBanDuration = 24 * time.Hour
	floodBanDuration        = time.Minute
	floodNoticeTTL          = 5 * time.Second
	followUpTTL             = 48 * time.Hour

	callbackPrefix = "gate"

	updateTypeCallbackQuery updateType = "callback_query"
	updateTypeChatMember    updateType = "chat_member"
	updateTypeNewChatMember updateType = "new_chat_members"
	updateTypeIgnore        updateType = "ignore"
)

type updateType string

// AnswerPolicy decides whether a submitted button label resolves the
// challenge. The mechanism is fixed; only the predicate is pluggable.
type AnswerPolicy func(gate *config.Gate, label string) bool

func ExactMatchPolicy(gate *config.Gate, label string) bool {
	return label == gate.CorrectAnswer
}

func AcceptAnyPolicy(*config.Gate, string) bool {
	return true
}

func PolicyFromName(name string) AnswerPolicy {
	if strings.EqualFold(name, "any") {
		return AcceptAnyPolicy
	}
	return ExactMatchPolicy
}

type GatekeeperBanChecker interface {
	CheckBan(ctx context.Context, userID int64) (bool, error)
	IsKnownBanned(userID int64) bool
}

type gatekeeperStore interface {
	CreateChallenge(ctx context.Context, challenge *db.ChallengeAttempt) (*db.ChallengeAttempt, error)
	GetChallenge(ctx context.Context, chatID, userID int64) (*db.ChallengeAttempt, error)
	SetChallengeMessageID(ctx context.Context, chatID, userID int64, messageID int) error
	IncrementChallengeAttempts(ctx context.Context, chatID, userID int64) (int, error)
	DeleteChallenge(ctx context.Context, chatID, userID int64) (bool, error)
	IsBlacklisted(ctx context.Context, userID int64, now time.Time) (bool, error)
}

type Gatekeeper struct {
	s          bot.Service
	store      gatekeeperStore
	gate       *config.Gate
	policy     AnswerPolicy
	scheduler  *sched.Scheduler
	flood      *flood.Controller
	banChecker GatekeeperBanChecker

	challengeTimeout time.Duration

	logger *log.Entry
}

func NewGatekeeper(
	s bot.Service,
	policy AnswerPolicy,
	scheduler *sched.Scheduler,
	floodCtl *flood.Controller,
	banChecker GatekeeperBanChecker,
	challengeTimeout time.Duration,
) *Gatekeeper {
	return &Gatekeeper{
		s:                s,
		store:            s.GetDB(),
		gate:             s.GetGate(),
		policy:           policy,
		scheduler:        scheduler,
		flood:            floodCtl,
		banChecker:       banChecker,
		challengeTimeout: challengeTimeout,
	}
}

func (g *Gatekeeper) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	entry := g.getLogEntry()

	if chat == nil || user == nil {
		entry.Debug("missing chat or user")
		return true, nil
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	switch g.determineUpdateType(u) {
	case updateTypeCallbackQuery:
		return false, g.handleChallenge(ctx, u, chat, user)
	case updateTypeChatMember:
		member := u.ChatMember.NewChatMember.User
		eventTime := time.Unix(int64(u.ChatMember.Date), 0)
		return true, g.handleJoin(ctx, chat, member, 0, eventTime)
	case updateTypeNewChatMember:
		return true, g.handleNewChatMembers(ctx, u.Message, chat)
	default:
		return true, nil
	}
}

func (g *Gatekeeper) determineUpdateType(u *api.Update) updateType {
	if u.CallbackQuery != nil {
		if isGateCallbackData(u.CallbackQuery.Data) {
			return updateTypeCallbackQuery
		}
		return updateTypeIgnore
	}
	if u.ChatMember != nil && isJoinTransition(u.ChatMember) {
		return updateTypeChatMember
	}
	if u.Message != nil && u.Message.NewChatMembers != nil {
		return updateTypeNewChatMember
	}
	return updateTypeIgnore
}

func isJoinTransition(cm *api.ChatMemberUpdated) bool {
	wasOut := cm.OldChatMember.HasLeft() || cm.OldChatMember.WasKicked()
	isIn := tool.In(cm.NewChatMember.Status, "member", "restricted")
	return wasOut && isIn
}

func isGateCallbackData(data string) bool {
	parts := strings.Split(data, ";")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return false
	}
	if _, err := strconv.ParseInt(parts[1], 10, 64); err != nil {
		return false
	}
	if _, err := strconv.Atoi(parts[2]); err != nil {
		return false
	}
	return true
}

func parseGateCallbackData(data string) (targetUserID int64, optionIndex int, err error) {
	parts := strings.Split(data, ";")
	if len(parts) != 3 || parts[0] != callbackPrefix {
		return 0, 0, errInvalidCallbackData
	}
	targetUserID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, errInvalidCallbackData
	}
	optionIndex, err = strconv.Atoi(parts[2])
	if err != nil {
		return 0, 0, errInvalidCallbackData
	}
	return targetUserID, optionIndex, nil
}

func (g *Gatekeeper) getLogEntry() *log.Entry {
	if g.logger == nil {
		g.logger = log.WithField("handler", "gatekeeper")
	}
	return g.logger
}
