package main // Entry point package

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/crazyjump/crazyjump-bot/internal/bot"
	"github.com/crazyjump/crazyjump-bot/internal/config"
	"github.com/crazyjump/crazyjump-bot/internal/flow"
	"github.com/crazyjump/crazyjump-bot/internal/jobs"
	"github.com/crazyjump/crazyjump-bot/internal/queue"
	"github.com/crazyjump/crazyjump-bot/internal/server"
	"github.com/crazyjump/crazyjump-bot/internal/storage"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()
	cfg := config.Load()
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database failed")
	}
	defer store.Close()

	// Wizard state lives in Redis when one is reachable, so in-progress
	// conversations survive restarts; otherwise it falls back to memory.
	var flows flow.Store
	if client := config.NewRedisClient(); client != nil {
		flows = flow.NewRedisStore(client, cfg.FlowTTLSec)
		log.Info().Msg("using redis flow store")
	} else {
		mem := flow.NewMemoryStore(time.Duration(cfg.FlowTTLSec) * time.Second)
		defer mem.Close()
		flows = mem
		log.Info().Msg("using in-memory flow store")
	}

	var publisher *queue.Publisher
	if cfg.RabbitURL != "" {
		publisher = queue.NewPublisher(cfg.RabbitURL)
	}

	b, err := bot.New(cfg.Token, store, flows, publisher, cfg.AdminChatID, cfg.BackupDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("bot authorization failed")
	}

	if cfg.RabbitURL != "" {
		consumer := queue.NewConsumer(cfg.RabbitURL, cfg.AdminChatID, b, log)
		go consumer.Run(ctx)
	}

	j := jobs.New(store, b, log)
	go j.RunExpirySweep(ctx)
	go j.RunSessionReminders(ctx)
	// Pinging our own public URL keeps free-tier hosts from idling us out.
	if keepalive := cfg.KeepaliveURL; keepalive != "" || cfg.PublicURL != "" {
		if keepalive == "" {
			keepalive = cfg.PublicURL
		}
		go j.RunKeepalive(ctx, keepalive)
	}

	e := server.New(store, b, log)
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil {
			log.Info().Err(err).Msg("http server stopped")
		}
	}()

	// With a public URL Telegram pushes updates to /webhook; without one
	// the bot long-polls.
	if cfg.PublicURL == "" {
		b.Start(ctx)
	} else {
		url := cfg.PublicURL + "/webhook"
		if err := b.ConfigureWebhook(url); err != nil {
			log.Fatal().Err(err).Msg("webhook registration failed")
		}
		log.Info().Str("url", url).Msg("webhook mode")
		<-ctx.Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
}
