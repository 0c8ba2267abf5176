// Copyright 2024-2026 Aiku AI

package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-aibot/pkg/plugins"
)

// CommandSigil marks a post as a command rather than free-form chat.
const CommandSigil = "/"

// gateway is the narrow surface the event router needs from the
// connection: the bot's own identity for echo prevention and a way to
// publish replies.
type gateway interface {
	BotUserID() string
	PostMessage(ctx context.Context, channelID, message string) error
}

// IncomingPost is the normalized form of a new-post event. It is
// constructed once per raw event and never mutated after construction.
type IncomingPost struct {
	ChannelID string
	AuthorID  string
	// Text is trimmed of leading/trailing whitespace before classification.
	Text    string
	FileIDs []string
}

// Service routes decoded stream events: it filters self-authored posts,
// classifies each post as command or chat, and dispatches accordingly.
// It holds no internal concurrency; the client guarantees sequential
// delivery on a single goroutine.
type Service struct {
	gw       gateway
	registry *plugins.Registry
	commands *Dispatcher
	// timeout bounds each event's dispatch, including any outbound AI
	// call a plugin makes. Zero means no bound.
	timeout time.Duration
	log     zerolog.Logger
}

// NewService creates the event router backed by the given connection
// and plugin registry.
func NewService(gw gateway, registry *plugins.Registry, timeout time.Duration, log zerolog.Logger) *Service {
	return &Service{
		gw:       gw,
		registry: registry,
		commands: NewDispatcher(registry, log),
		timeout:  timeout,
		log:      log.With().Str("component", "bot_service").Logger(),
	}
}

// HandleEvent is the single listener registered on the stream client.
// One bad event must never take down the stream: malformed payloads are
// logged and dropped.
func (s *Service) HandleEvent(evt *model.WebSocketEvent) {
	if evt.EventType() != model.WebsocketEventPosted {
		s.log.Trace().Str("event_type", string(evt.EventType())).Msg("Ignoring event type")
		return
	}

	post, err := s.parsePostedEvent(evt)
	if err != nil {
		s.log.Warn().Err(err).Msg("Dropping malformed posted event")
		return
	}
	if post == nil {
		return
	}

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var response string
	if strings.HasPrefix(post.Text, CommandSigil) {
		response = s.handleCommand(ctx, post)
	} else {
		response = s.handleChat(ctx, post)
	}
	if response == "" {
		return
	}

	if err := s.gw.PostMessage(ctx, post.ChannelID, response); err != nil {
		s.log.Error().Err(err).Str("channel_id", post.ChannelID).Msg("Failed to post reply")
	}
}

// parsePostedEvent decodes the embedded post payload and applies echo
// prevention. Returns (nil, nil) when the post is the bot's own.
func (s *Service) parsePostedEvent(evt *model.WebSocketEvent) (*IncomingPost, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("posted event missing post data")
	}

	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}

	// Echo prevention: skip own posts.
	if post.UserId == s.gw.BotUserID() {
		return nil, nil
	}

	return &IncomingPost{
		ChannelID: post.ChannelId,
		AuthorID:  post.UserId,
		Text:      strings.TrimSpace(post.Message),
		FileIDs:   []string(post.FileIds),
	}, nil
}

func (s *Service) handleCommand(ctx context.Context, post *IncomingPost) string {
	fields := strings.Fields(strings.TrimPrefix(post.Text, CommandSigil))
	if len(fields) == 0 {
		return ""
	}
	verb, args := fields[0], fields[1:]

	// Only the first attachment rides along as the final argument.
	if len(post.FileIDs) > 0 {
		args = append(args, post.FileIDs[0])
	}

	s.log.Debug().Str("verb", verb).Str("user_id", post.AuthorID).Msg("Dispatching command")
	return s.commands.Execute(ctx, verb, args, post.ChannelID, post.AuthorID)
}

func (s *Service) handleChat(ctx context.Context, post *IncomingPost) string {
	chat, ok := s.registry.Get("chat")
	if !ok {
		s.log.Warn().Msg("Chat plugin not found, unable to process chat message")
		return ""
	}
	return s.commands.invoke(ctx, chat, []string{post.Text}, post.ChannelID, post.AuthorID)
}
