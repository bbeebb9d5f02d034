package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/damoclesbot/damocles/internal/bot"
	"github.com/damoclesbot/damocles/internal/config"
	"github.com/damoclesbot/damocles/internal/db/sqlite"
	"github.com/damoclesbot/damocles/internal/flood"
	chat "github.com/damoclesbot/damocles/internal/handlers/chat"
	moderation "github.com/damoclesbot/damocles/internal/handlers/moderation"
	"github.com/damoclesbot/damocles/internal/infra"
	"github.com/damoclesbot/damocles/internal/lifecycle"
	"github.com/damoclesbot/damocles/internal/observability"
	"github.com/damoclesbot/damocles/internal/sched"
)

func main() {
	cfg := config.Get()
	log.SetFormatter(&config.DmFormatter{})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.Level(cfg.LogLevel))

	gate, err := config.LoadGate(cfg.GatePath)
	if err != nil {
		log.WithError(err).Fatalln("cant load gate config")
	}

	observability.Register()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	dbClient, err := sqlite.NewSQLiteClient(ctx, infra.GetWorkDir(), "damocles.db")
	if err != nil {
		log.WithError(err).Fatalln("cant open database")
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			log.WithError(err).Errorln("cant close database")
		}
	}()

	banService := moderation.NewBanService()
	runtime := lifecycle.NewRuntime(
		banService,
		infra.NewHealthServer(cfg.HealthListenAddr),
	)
	if err := runtime.Start(ctx); err != nil {
		log.WithError(err).Fatalln("cant start components")
	}
	defer func() {
		if err := runtime.Shutdown(); err != nil {
			log.WithError(err).Errorln("cant stop components")
		}
	}()

	go infra.GoRecoverable(-1, "process_updates", func() {
		botAPI, err := api.NewBotAPI(cfg.TelegramAPIToken)
		if err != nil {
			log.WithError(err).Errorln("cant initialize bot api")
			time.Sleep(1 * time.Second)
			log.Fatalln("exiting")
		}
		if log.Level(cfg.LogLevel) == log.TraceLevel {
			botAPI.Debug = true
		}
		defer botAPI.StopReceivingUpdates()

		service := bot.NewService(botAPI, dbClient, gate, cfg.Language)
		scheduler := sched.New()
		floodCtl := flood.NewController(dbClient, cfg.FloodCeiling, cfg.DispatchSpacing)

		updateProcessor := bot.NewUpdateProcessor(service,
			chat.NewGatekeeper(
				service,
				chat.PolicyFromName(cfg.GatePolicy),
				scheduler,
				floodCtl,
				banService,
				cfg.ChallengeTimeout,
			),
			moderation.NewSpamFilter(service),
		)

		updateConfig := api.NewUpdate(0)
		updateConfig.Timeout = 60
		updateConfig.AllowedUpdates = []string{"message", "chat_member", "callback_query"}

		updateChan, errorChan := bot.GetUpdatesChans(ctx, botAPI, updateConfig)

		log.WithField("username", botAPI.Self.UserName).Infoln("bot started")
		for {
			select {
			case err := <-errorChan:
				if ctx.Err() != nil {
					return
				}
				log.WithError(err).Panicln("bot api get updates error")
			case update := <-updateChan:
				if err := updateProcessor.Process(ctx, &update); err != nil {
					log.WithError(err).Errorln("cant process update")
				}
			case <-ctx.Done():
				log.Infoln("no more updates")
				return
			}
		}
	})

	<-ctx.Done()
	log.Infoln("shutting down")
}
