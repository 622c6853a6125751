package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mirelabs/companion/internal/ai"
	"github.com/mirelabs/companion/internal/analyzer"
	"github.com/mirelabs/companion/internal/bot"
	"github.com/mirelabs/companion/internal/config"
	"github.com/mirelabs/companion/internal/database"
	"github.com/mirelabs/companion/internal/extractor"
	"github.com/mirelabs/companion/internal/logging"
	"github.com/mirelabs/companion/internal/models"
	"github.com/mirelabs/companion/internal/proactive"
	"github.com/mirelabs/companion/internal/repository"
	"github.com/mirelabs/companion/internal/scheduler"
	"github.com/mirelabs/companion/internal/telegram"
	"github.com/mirelabs/companion/internal/temporal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New("info", true)
		fallback.Fatal().Err(err).Msg("Failed to load config")
	}

	log := logging.New(cfg.LogLevel, true)

	if cfg.DatabaseURI == "" {
		log.Fatal().Msg("DATABASE_URI is required")
	}
	if cfg.TelegramToken == "" {
		log.Fatal().Msg("TELEGRAM_TOKEN is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(ctx, cfg.DatabaseURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Connected to database")

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	log.Info().Msg("Database migrations completed")

	users := repository.NewUserRepository(db)
	botSettings := repository.NewBotSettingsRepository(db)
	schedules := repository.NewScheduleRepository(db)
	sessions := repository.NewSessionRepository(db)
	prefs := repository.NewPreferenceRepository(db)

	keywords := cfg.Extraction.Keywords
	if len(keywords) == 0 {
		keywords = extractor.DefaultKeywords()
	}
	var ex extractor.Extractor = extractor.NewKeywordExtractor(keywords, temporal.NewParser())
	if cfg.AIAPIKey != "" {
		aiClient := ai.New(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel)
		ex = extractor.NewLLMExtractor(aiClient, ex, log)
		log.Info().Str("model", cfg.AIModel).Msg("AI extraction enabled")
	} else {
		log.Info().Msg("AI not configured, using keyword extraction only")
	}

	an := analyzer.New(ex, schedules, cfg.Extraction.ConfidenceThreshold, cfg.Extraction.DedupWindow, log)

	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Telegram API client")
	}

	router := proactive.NewRouter()
	router.Register(models.ChannelTelegram, telegram.NewSender(api, log))
	router.Register(models.ChannelWeb, proactive.NewFeedSender(log))

	gate := proactive.NewGate(prefs, sessions, log)
	handler := proactive.NewHandler(schedules, sessions, users, gate, router, proactive.Config{
		PrepLeadTime:    cfg.Proactive.PrepLeadTime,
		PrepJitter:      cfg.Proactive.PrepJitter,
		FollowupDelay:   cfg.Proactive.FollowupDelay,
		FollowupHorizon: cfg.Proactive.FollowupHorizon,
		ActiveWindow:    cfg.Proactive.ActiveWindow,
		SendTimeout:     cfg.Proactive.SendTimeout,
	}, nil, log)

	sched := scheduler.New(handler, cfg.Proactive.PollInterval, log)
	go sched.Start(ctx)

	b := bot.New(api, users, botSettings, sessions, an, handler, sched, log)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down")
		cancel()
	}()

	log.Info().Msg("Starting bot")
	if err := b.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Bot error")
	}
}
