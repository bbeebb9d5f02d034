package handlers

import (
	"context"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/damoclesbot/damocles/internal/bot"
	"github.com/damoclesbot/damocles/internal/observability"
)

const spamBanDuration = 24 * time.Hour

// linkFragments are the substrings that make a message look like it carries
// links. Two or more hits in a first message is enough to ban.
var linkFragments = []string{
	"http://",
	"https://",
	"t.me/",
	"telegram.me/",
	"www.",
}

type screenStore interface {
	IsScreened(ctx context.Context, chatID, userID int64) (bool, error)
	MarkScreened(ctx context.Context, chatID, userID int64) error
}

// SpamFilter screens the first text message of every newcomer. Users who
// pass once are never re-checked; users who fail are banned and never enter
// the screened set.
type SpamFilter struct {
	s                bot.Service
	store            screenStore
	bannedSubstrings []string

	logger *log.Entry
}

func NewSpamFilter(s bot.Service) *SpamFilter {
	return &SpamFilter{
		s:                s,
		store:            s.GetDB(),
		bannedSubstrings: s.GetGate().BannedSubstrings,
	}
}

func (f *SpamFilter) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error) {
	entry := f.getLogEntry()

	if u.Message == nil || chat == nil || user == nil {
		return true, nil
	}
	msg := u.Message
	if chat.IsPrivate() || user.IsBot || msg.NewChatMembers != nil || msg.LeftChatMember != nil {
		return true, nil
	}
	content := strings.TrimSpace(msg.Text + " " + msg.Caption)
	if content == "" {
		return true, nil
	}

	entry = entry.WithFields(log.Fields{
		"chat_id": chat.ID,
		"user_id": user.ID,
	})

	screened, err := f.store.IsScreened(ctx, chat.ID, user.ID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to check screened set")
		return true, nil
	}
	if screened {
		return true, nil
	}

	if spam, reason := f.classify(content); spam {
		entry.WithField("reason", reason).Info("first message flagged as spam")
		f.punish(ctx, chat.ID, user.ID, msg.MessageID)
		return false, nil
	}

	if err := f.store.MarkScreened(ctx, chat.ID, user.ID); err != nil {
		entry.WithField("error", err.Error()).Error("failed to mark user as screened")
	}
	return true, nil
}

// classify applies the first-message policy: two or more link fragments, or
// any configured banned substring, case-insensitive.
func (f *SpamFilter) classify(content string) (spam bool, reason string) {
	lowered := strings.ToLower(content)

	linkHits := 0
	for _, fragment := range linkFragments {
		linkHits += strings.Count(lowered, fragment)
	}
	if linkHits >= 2 {
		return true, "links"
	}

	for _, banned := range f.bannedSubstrings {
		banned = strings.ToLower(strings.TrimSpace(banned))
		if banned == "" {
			continue
		}
		if strings.Contains(lowered, banned) {
			return true, "substring"
		}
	}
	return false, ""
}

func (f *SpamFilter) punish(ctx context.Context, chatID, userID int64, messageID int) {
	entry := f.getLogEntry().WithFields(log.Fields{
		"chat_id": chatID,
		"user_id": userID,
	})

	b := f.s.GetBot()
	if err := bot.DeleteChatMessage(ctx, b, chatID, messageID); err != nil {
		entry.WithField("error", err.Error()).Warn("cant delete spam message")
	}
	observability.RecordSpamDeletion()
	observability.RecordBan("spam")
	if err := bot.BanUserFromChat(ctx, b, userID, chatID, time.Now().Add(spamBanDuration).Unix()); err != nil {
		entry.WithField("error", err.Error()).Error("cant ban spammer")
	}
}

func (f *SpamFilter) getLogEntry() *log.Entry {
	if f.logger == nil {
		f.logger = log.WithField("handler", "spam_filter")
	}
	return f.logger
}
