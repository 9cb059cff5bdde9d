package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/evolark/photogenbot/internal/admin"
	"github.com/evolark/photogenbot/internal/catalog"
	"github.com/evolark/photogenbot/internal/config"
	"github.com/evolark/photogenbot/internal/evolink"
	"github.com/evolark/photogenbot/internal/ledger"
	"github.com/evolark/photogenbot/internal/payment"
	"github.com/evolark/photogenbot/internal/session"
	"github.com/evolark/photogenbot/internal/storage"
	"github.com/evolark/photogenbot/internal/telegram"
	"github.com/evolark/photogenbot/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	cat := catalog.New(cfg)
	ldgr := ledger.New(ledger.NewMemoryStore())
	payments := payment.NewService(cfg, ldgr, logr)

	var refStorage telegram.ReferenceStorage
	if cfg.ReferenceStorageConfigured() {
		uploader, err := storage.NewUploader(cfg)
		if err != nil {
			log.Fatalf("reference storage: %v", err)
		}
		refStorage = uploader
	}

	bot := telegram.NewBot(cfg, botAPI, logr, cat, ldgr, payments, refStorage)

	orchestrator := session.NewOrchestrator(
		cat,
		ldgr,
		evolink.NewClient(cfg, logr),
		evolink.NewPoller(cfg, logr),
		evolink.NewFetcher(cfg, logr),
		bot,
		logr,
	)
	bot.SetOrchestrator(orchestrator)

	adminServer := admin.NewServer(cfg.AdminListenAddr, cfg.AdminUsername, cfg.AdminPassword, logr, ldgr, payments)
	go func() {
		if err := adminServer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logr.Error("admin server stopped", "err", err)
		}
	}()

	if err := bot.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("bot stopped", "err", err)
	}
}
