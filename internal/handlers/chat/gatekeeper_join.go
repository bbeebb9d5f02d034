package handlers

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/damoclesbot/damocles/internal/bot"
	"github.com/damoclesbot/damocles/internal/db"
	"github.com/damoclesbot/damocles/internal/flood"
	"github.com/damoclesbot/damocles/internal/i18n"
	"github.com/damoclesbot/damocles/internal/observability"
)

func (g *Gatekeeper) handleNewChatMembers(ctx context.Context, msg *api.Message, chat *api.Chat) error {
	entry := g.getLogEntry().WithField("method", "handleNewChatMembers")

	eventTime := time.Unix(int64(msg.Date), 0)
	eg, egCtx := errgroup.WithContext(ctx)
	for _, member := range msg.NewChatMembers {
		member := member
		eg.Go(func() error {
			if err := g.handleJoin(egCtx, chat, &member, msg.MessageID, eventTime); err != nil {
				entry.WithFields(log.Fields{
					"user_id": member.ID,
					"error":   err.Error(),
				}).Error("failed to gate new member")
				return err
			}
			return nil
		})
	}
	return eg.Wait()
}

// handleJoin runs the admission sequence for one joiner. Each step either
// resolves the join outright or falls through to issuing a challenge.
func (g *Gatekeeper) handleJoin(ctx context.Context, chat *api.Chat, user *api.User, joinMessageID int, eventTime time.Time) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":   "handleJoin",
		"chat_id":  chat.ID,
		"user_id":  user.ID,
		"username": bot.GetUN(user),
	})

	if user.IsBot {
		return nil
	}

	now := time.Now()
	if now.Sub(eventTime) > staleJoinCutoff {
		entry.WithField("age", now.Sub(eventTime)).Debug("ignoring stale join event")
		return nil
	}

	blacklisted, err := g.store.IsBlacklisted(ctx, user.ID, now)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to check blacklist")
	}
	if blacklisted {
		entry.Info("blacklisted user attempted to join")
		return g.banJoiner(ctx, chat.ID, user.ID, joinMessageID, 0, "blacklist")
	}

	if banned := g.checkReputation(ctx, user.ID); banned {
		entry.Info("joiner is flagged by reputation service")
		return g.banJoiner(ctx, chat.ID, user.ID, joinMessageID, 0, "reputation")
	}

	if err := g.flood.Admit(ctx); err != nil {
		if errors.Is(err, flood.ErrCeilingReached) {
			return g.rejectFlooded(ctx, chat.ID, user.ID)
		}
		entry.WithField("error", err.Error()).Error("failed to check challenge ceiling")
	}

	if err := bot.RestrictChatting(ctx, g.s.GetBot(), user.ID, chat.ID, now.Add(g.challengeTimeout)); err != nil {
		entry.WithField("error", err.Error()).Error("failed to restrict joiner")
	}

	if err := g.flood.WaitTurn(ctx); err != nil {
		return errors.WithMessage(err, "interrupted while waiting for dispatch slot")
	}

	return g.issueChallenge(ctx, chat, user, joinMessageID)
}

// checkReputation is fail-open: a slow or broken lookup never blocks a join.
func (g *Gatekeeper) checkReputation(ctx context.Context, userID int64) bool {
	if g.banChecker.IsKnownBanned(userID) {
		return true
	}
	banned, err := g.banChecker.CheckBan(ctx, userID)
	if err != nil {
		g.getLogEntry().WithFields(log.Fields{
			"method":  "checkReputation",
			"user_id": userID,
			"error":   err.Error(),
		}).Warn("reputation lookup failed, treating as clean")
		return false
	}
	return banned
}

func (g *Gatekeeper) rejectFlooded(ctx context.Context, chatID, userID int64) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "rejectFlooded",
		"user_id": userID,
	})

	b := g.s.GetBot()
	notice := api.NewMessage(chatID, i18n.Get("Too many newcomers right now, please try to join again in a minute", g.s.GetLanguage()))
	notice.DisableNotification = true
	if sent, err := b.Send(notice); err == nil && sent.MessageID != 0 {
		g.scheduler.Schedule(floodNoticeTTL, "flood-notice:"+uuid.New(), func() {
			if err := bot.DeleteChatMessage(context.Background(), b, chatID, sent.MessageID); err != nil {
				entry.WithField("error", err.Error()).Warn("cant delete flood notice")
			}
		})
	} else if err != nil {
		entry.WithField("error", err.Error()).Error("cant send flood notice")
	}

	observability.RecordBan("flood")
	if err := bot.BanUserFromChat(ctx, b, userID, chatID, time.Now().Add(floodBanDuration).Unix()); err != nil {
		entry.WithField("error", err.Error()).Error("cant ban flooded joiner")
	}
	return nil
}

func (g *Gatekeeper) issueChallenge(ctx context.Context, chat *api.Chat, user *api.User, joinMessageID int) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "issueChallenge",
		"chat_id": chat.ID,
		"user_id": user.ID,
	})

	b := g.s.GetBot()
	photo := api.NewPhoto(chat.ID, api.FilePath(g.gate.ImagePath))
	photo.Caption = g.gate.WelcomeCaption
	photo.DisableNotification = true
	markup := g.buildKeyboard(user.ID)
	photo.ReplyMarkup = &markup

	// The record goes in before the dispatch so the flood ceiling counts
	// in-flight challenges too.
	now := time.Now()
	challenge := &db.ChallengeAttempt{
		ChatID:        chat.ID,
		UserID:        user.ID,
		Token:         uuid.New(),
		JoinMessageID: joinMessageID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(g.challengeTimeout),
	}
	if _, err := g.store.CreateChallenge(ctx, challenge); err != nil {
		entry.WithField("error", err.Error()).Error("failed to persist challenge")
		return err
	}

	sentMsg, err := b.Send(photo)
	if err != nil {
		// Dispatch failure is treated as suspicious, unlike the fail-open
		// reputation lookup.
		entry.WithField("error", err.Error()).Error("failed to send challenge, banning joiner")
		if _, delErr := g.store.DeleteChallenge(ctx, chat.ID, user.ID); delErr != nil {
			entry.WithField("error", delErr.Error()).Error("cant delete undispatched challenge")
		}
		observability.RecordBan("dispatch")
		if banErr := bot.BanUserFromChat(ctx, b, user.ID, chat.ID, time.Now().Add(dispatchFailBanDuration).Unix()); banErr != nil {
			entry.WithField("error", banErr.Error()).Error("cant ban joiner after dispatch failure")
		}
		return errors.WithMessage(err, "cant send challenge message")
	}

	challenge.ChallengeMessageID = sentMsg.MessageID
	if err := g.store.SetChallengeMessageID(ctx, chat.ID, user.ID, sentMsg.MessageID); err != nil {
		entry.WithField("error", err.Error()).Error("cant record challenge message id")
	}

	g.scheduler.Schedule(g.challengeTimeout, challenge.Token, func() {
		g.expireChallenge(context.Background(), chat.ID, user.ID, challenge.Token)
	})

	observability.RecordChallenge("issued")
	entry.WithField("message_id", sentMsg.MessageID).Info("challenge issued")
	return nil
}

// expireChallenge fires when the challenge deadline passes. The record
// existence check is authoritative: firing after resolution is a no-op even
// if the cancellation was lost.
func (g *Gatekeeper) expireChallenge(ctx context.Context, chatID, userID int64, token string) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "expireChallenge",
		"chat_id": chatID,
		"user_id": userID,
	})

	challenge, err := g.store.GetChallenge(ctx, chatID, userID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to fetch challenge")
		return
	}
	if challenge == nil || challenge.Token != token {
		return
	}

	existed, err := g.store.DeleteChallenge(ctx, chatID, userID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to delete challenge")
		return
	}
	if !existed {
		return
	}

	b := g.s.GetBot()
	if challenge.ChallengeMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, chatID, challenge.ChallengeMessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete challenge message")
		}
	}
	if challenge.JoinMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, chatID, challenge.JoinMessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete join message")
		}
	}
	observability.RecordChallenge("expired")
	observability.RecordBan("expiry")
	if err := bot.BanUserFromChat(ctx, b, userID, chatID, time.Now().Add(rejectBanDuration).Unix()); err != nil {
		entry.WithField("error", err.Error()).Error("cant ban expired joiner")
	}
	entry.Info("challenge expired, joiner banned")
}

func (g *Gatekeeper) banJoiner(ctx context.Context, chatID, userID int64, joinMessageID int, untilUnix int64, reason string) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "banJoiner",
		"chat_id": chatID,
		"user_id": userID,
		"reason":  reason,
	})

	b := g.s.GetBot()
	observability.RecordBan(reason)
	if err := bot.BanUserFromChat(ctx, b, userID, chatID, untilUnix); err != nil {
		entry.WithField("error", err.Error()).Error("cant ban joiner")
		return err
	}
	if joinMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, chatID, joinMessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete join message")
		}
	}
	return nil
}
