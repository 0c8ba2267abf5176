// Copyright 2024-2026 Aiku AI
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command mattermost-aibot is a Mattermost chatbot backed by OpenAI
// services. It keeps a persistent WebSocket connection to the server,
// answers free-form messages with an AI chat completion, and exposes
// slash-commands (/help, /chat, /image, /audio) backed by pluggable
// capability providers.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.mau.fi/util/exzerolog"

	"github.com/aiku/mattermost-aibot/pkg/ai"
	"github.com/aiku/mattermost-aibot/pkg/bot"
	"github.com/aiku/mattermost-aibot/pkg/plugins"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file (optional)")
	flag.Parse()

	// .env is a convenience for local runs; absence is fine.
	_ = godotenv.Load()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	exzerolog.SetupDefaults(&log)

	cfg, err := bot.LoadConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	openaiClient, err := ai.NewOpenAI(ai.OpenAIConfig{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.APIBase,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create OpenAI client")
	}

	client := bot.NewClient(bot.ClientConfig{
		ServerURL:      cfg.Mattermost.ServerURL,
		Token:          cfg.Mattermost.Token,
		ReconnectDelay: time.Duration(cfg.Bot.ReconnectSeconds) * time.Second,
	}, log)

	registry := plugins.NewRegistry(log)
	registry.Load(cfg.Bot.Plugins, plugins.BuiltinFactories(), plugins.Deps{
		Posts: client,
		Files: client,
		Settings: plugins.Settings{
			DefaultChatService:  cfg.Bot.ChatService,
			DefaultImageService: cfg.Bot.ImageService,
			DefaultAudioService: cfg.Bot.AudioService,
			MaxContextTurns:     cfg.Bot.ContextTurns,
			Instruction:         cfg.Bot.Instruction,
		},
		Chat:   map[string]ai.ChatService{"openai": openaiClient},
		Images: map[string]ai.ImageService{"dalle": openaiClient},
		Audio:  map[string]ai.TranscriptionService{"openai": openaiClient},
		Log:    log,
	})

	service := bot.NewService(client, registry,
		time.Duration(cfg.Bot.RequestTimeoutSeconds)*time.Second, log)
	client.AddListener(service.HandleEvent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Mattermost")
	}
	log.Info().
		Str("version", Tag).
		Str("server_url", cfg.Mattermost.ServerURL).
		Msg("Bot started")

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	client.Close()
	registry.Shutdown()
}
