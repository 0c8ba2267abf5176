// Copyright 2024-2026 Aiku AI

package plugins

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-aibot/pkg/ai"
)

const chatApology = "I'm sorry, I couldn't process that request at the moment."

// ChatPlugin answers free-form chat messages with an AI completion. It
// keeps a bounded per-user conversation history so follow-up messages
// carry context.
type ChatPlugin struct {
	services       map[string]ai.ChatService
	defaultService string
	instruction    string
	maxTurns       int

	// contexts maps user ID to that user's conversation turns, oldest
	// first. Only ever touched from the dispatch goroutine.
	contexts map[string][]ai.Message

	log zerolog.Logger
}

// NewChatPlugin constructs the chat capability.
func NewChatPlugin(deps Deps) (Plugin, error) {
	if len(deps.Chat) == 0 {
		return nil, fmt.Errorf("chat plugin: no chat services configured")
	}
	return &ChatPlugin{
		services:       deps.Chat,
		defaultService: deps.Settings.DefaultChatService,
		instruction:    deps.Settings.Instruction,
		maxTurns:       deps.Settings.MaxContextTurns,
		contexts:       make(map[string][]ai.Message),
		log:            deps.Log.With().Str("plugin", "chat").Logger(),
	}, nil
}

func (p *ChatPlugin) Name() string        { return "chat" }
func (p *ChatPlugin) Description() string { return "Chat with the AI assistant" }
func (p *ChatPlugin) Usage() string {
	return "Just type your message to chat, or use /chat [--service <service_name>] <message>"
}

// Execute appends the user's message to their conversation context,
// assembles the prompt (system instruction first, then the bounded
// history) and returns the reply prefixed with the service name.
func (p *ChatPlugin) Execute(ctx context.Context, args []string, channelID, userID string) string {
	service := p.defaultService
	var message string
	if len(args) > 0 && args[0] == "--service" {
		if len(args) < 3 {
			return "Please specify a service name and a message after --service"
		}
		service = args[1]
		message = strings.Join(args[2:], " ")
	} else {
		message = strings.Join(args, " ")
	}

	svc, ok := p.services[service]
	if !ok {
		return fmt.Sprintf("Unknown service: %s. Available services: %s",
			service, strings.Join(p.serviceNames(), ", "))
	}

	turns := p.appendTurn(userID, ai.Message{Role: ai.RoleUser, Content: message})

	// The system turn is recomputed fresh per call and never persisted.
	prompt := make([]ai.Message, 0, len(turns)+1)
	prompt = append(prompt, ai.Message{Role: ai.RoleSystem, Content: p.instruction})
	prompt = append(prompt, turns...)

	reply, err := svc.Complete(ctx, prompt)
	if err != nil {
		p.log.Error().Err(err).Str("service", service).Str("user_id", userID).
			Msg("Chat completion failed")
		reply = chatApology
	}
	p.appendTurn(userID, ai.Message{Role: ai.RoleAssistant, Content: reply})

	return fmt.Sprintf("[%s] %s", service, reply)
}

func (p *ChatPlugin) Initialize() error {
	p.log.Info().Str("default_service", p.defaultService).Msg("Initialized chat plugin")
	return nil
}

func (p *ChatPlugin) Cleanup() error {
	p.log.Info().Msg("Cleaning up chat plugin")
	return nil
}

// appendTurn adds a turn to the user's context, evicting the oldest
// turns when the configured maximum is exceeded, and returns the
// resulting history.
func (p *ChatPlugin) appendTurn(userID string, turn ai.Message) []ai.Message {
	turns := append(p.contexts[userID], turn)
	if p.maxTurns > 0 && len(turns) > p.maxTurns {
		turns = turns[len(turns)-p.maxTurns:]
	}
	p.contexts[userID] = turns
	return turns
}

func (p *ChatPlugin) serviceNames() []string {
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
