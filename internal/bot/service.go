package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/damoclesbot/damocles/internal/config"
	"github.com/damoclesbot/damocles/internal/db"
)

type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

type Service interface {
	GetBot() *api.BotAPI
	GetDB() db.Client
	GetGate() *config.Gate
	GetLanguage() string
}

type service struct {
	bot  *api.BotAPI
	db   db.Client
	gate *config.Gate
	lang string
}

func NewService(bot *api.BotAPI, db db.Client, gate *config.Gate, lang string) *service {
	return &service{
		bot:  bot,
		db:   db,
		gate: gate,
		lang: lang,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetGate() *config.Gate {
	return s.gate
}

func (s *service) GetLanguage() string {
	return s.lang
}
