package handlers

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/damoclesbot/damocles/internal/bot"
	"github.com/damoclesbot/damocles/internal/db"
	"github.com/damoclesbot/damocles/internal/i18n"
	"github.com/damoclesbot/damocles/internal/observability"
)

var errInvalidCallbackData = errors.New("invalid callback data")

func (g *Gatekeeper) handleChallenge(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "handleChallenge",
		"chat_id": chat.ID,
		"user_id": user.ID,
	})

	cq := u.CallbackQuery
	lang := g.s.GetLanguage()

	targetUserID, optionIndex, err := parseGateCallbackData(cq.Data)
	if err != nil {
		entry.WithField("data", cq.Data).Warn("malformed callback data")
		g.answerCallback(cq.ID, "", false)
		return nil
	}

	// The challenge is bound to its target; anyone else pressing the buttons
	// gets told off and nothing changes.
	if user.ID != targetUserID {
		g.answerCallback(cq.ID, i18n.Get("Stop it! This challenge is not yours", lang), true)
		return nil
	}

	challenge, err := g.store.GetChallenge(ctx, chat.ID, targetUserID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to fetch challenge")
		return err
	}
	if challenge == nil {
		g.answerCallback(cq.ID, i18n.Get("This challenge has already been resolved", lang), false)
		return nil
	}

	label, ok := g.gate.Option(optionIndex)
	if !ok {
		entry.WithField("option", optionIndex).Warn("callback option out of range")
		g.answerCallback(cq.ID, "", false)
		return nil
	}

	if g.policy(g.gate, label) {
		return g.completeChallenge(ctx, challenge, cq, label, bot.GetFullName(user), lang)
	}
	return g.failAttempt(ctx, challenge, cq, lang)
}

func (g *Gatekeeper) completeChallenge(ctx context.Context, challenge *db.ChallengeAttempt, cq *api.CallbackQuery, label, username, lang string) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "completeChallenge",
		"chat_id": challenge.ChatID,
		"user_id": challenge.UserID,
	})

	existed, err := g.store.DeleteChallenge(ctx, challenge.ChatID, challenge.UserID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to delete challenge")
		return err
	}
	if !existed {
		// Lost the race against the expiry action.
		g.answerCallback(cq.ID, i18n.Get("This challenge has already been resolved", lang), false)
		return nil
	}
	g.scheduler.Cancel(challenge.Token)

	b := g.s.GetBot()
	if err := bot.UnrestrictChatting(ctx, b, challenge.UserID, challenge.ChatID); err != nil {
		entry.WithField("error", err.Error()).Error("cant unrestrict joiner")
	}
	if challenge.ChallengeMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, challenge.ChatID, challenge.ChallengeMessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete challenge message")
		}
	}
	g.answerCallback(cq.ID, i18n.Get("Welcome, friend!", lang), false)

	if label != "" && label == g.gate.BestAnswer && g.gate.BestAnswerFollowUp != "" {
		g.sendFollowUp(challenge, username)
	}

	observability.RecordChallenge("passed")
	entry.Info("challenge passed")
	return nil
}

func (g *Gatekeeper) failAttempt(ctx context.Context, challenge *db.ChallengeAttempt, cq *api.CallbackQuery, lang string) error {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "failAttempt",
		"chat_id": challenge.ChatID,
		"user_id": challenge.UserID,
	})

	attempts, err := g.store.IncrementChallengeAttempts(ctx, challenge.ChatID, challenge.UserID)
	if err != nil {
		entry.WithField("error", err.Error()).Debug("challenge vanished before increment")
		g.answerCallback(cq.ID, "", false)
		return nil
	}

	if attempts < maxChallengeAttempts {
		left := maxChallengeAttempts - attempts
		g.answerCallback(cq.ID, fmt.Sprintf(i18n.Get("Wrong answer. You have %d attempt(s) left", lang), left), true)
		return nil
	}

	g.answerCallback(cq.ID, i18n.Get("You are out of attempts", lang), true)

	b := g.s.GetBot()
	if challenge.ChallengeMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, challenge.ChatID, challenge.ChallengeMessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete challenge message")
		}
	}
	if challenge.JoinMessageID != 0 {
		if err := bot.DeleteChatMessage(ctx, b, challenge.ChatID, challenge.JoinMessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete join message")
		}
	}

	existed, err := g.store.DeleteChallenge(ctx, challenge.ChatID, challenge.UserID)
	if err != nil {
		entry.WithField("error", err.Error()).Error("failed to delete challenge")
		return err
	}
	g.scheduler.Cancel(challenge.Token)
	if !existed {
		return nil
	}

	observability.RecordChallenge("failed")
	observability.RecordBan("challenge")
	if err := bot.BanUserFromChat(ctx, b, challenge.UserID, challenge.ChatID, time.Now().Add(rejectBanDuration).Unix()); err != nil {
		entry.WithField("error", err.Error()).Error("cant ban joiner")
	}
	entry.Info("try budget exhausted, joiner banned")
	return nil
}

// sendFollowUp posts the best-answer follow-up and arms its delayed removal.
// Both are detached best-effort actions.
func (g *Gatekeeper) sendFollowUp(challenge *db.ChallengeAttempt, username string) {
	entry := g.getLogEntry().WithFields(log.Fields{
		"method":  "sendFollowUp",
		"chat_id": challenge.ChatID,
		"user_id": challenge.UserID,
	})

	b := g.s.GetBot()
	msg := api.NewMessage(challenge.ChatID, g.gate.RenderFollowUp(username))
	msg.DisableNotification = true
	sentMsg, err := b.Send(msg)
	if err != nil {
		entry.WithField("error", err.Error()).Warn("cant send follow-up message")
		return
	}
	g.scheduler.Schedule(followUpTTL, "followup:"+challenge.Token, func() {
		if err := bot.DeleteChatMessage(context.Background(), b, challenge.ChatID, sentMsg.MessageID); err != nil {
			entry.WithField("error", err.Error()).Warn("cant delete follow-up message")
		}
	})
}

func (g *Gatekeeper) answerCallback(callbackID, text string, alert bool) {
	var callback api.CallbackConfig
	if alert {
		callback = api.NewCallbackWithAlert(callbackID, text)
	} else {
		callback = api.NewCallback(callbackID, text)
	}
	if _, err := g.s.GetBot().Request(callback); err != nil {
		g.getLogEntry().WithField("error", err.Error()).Warn("cant answer callback query")
	}
}
