// Copyright 2024-2026 Aiku AI

// Package plugins implements the bot's capability providers and the
// registry that owns them.
//
// Each capability (chat, image, audio) is a [Plugin] constructed from a
// static factory table at startup. The registry indexes plugins by their
// own declared name and preserves insertion order for deterministic help
// output. Plugins reach the chat backend only through the narrow [Poster]
// and [FileStore] interfaces.
package plugins

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiku/mattermost-aibot/pkg/ai"
)

// Plugin is a named capability provider invoked by command verb or, for
// the chat plugin, as the default free-form chat path.
type Plugin interface {
	Name() string
	Description() string
	Usage() string

	// Execute runs the capability. A non-empty return value is posted back
	// to the originating channel; an empty string means the plugin already
	// produced its own side effects (or has nothing to say).
	Execute(ctx context.Context, args []string, channelID, userID string) string

	Initialize() error
	Cleanup() error
}

// Poster sends a reply back to a channel.
type Poster interface {
	PostMessage(ctx context.Context, channelID, message string) error
	PostMessageWithFiles(ctx context.Context, channelID, message string, fileIDs []string) error
}

// FileInfo describes an uploaded file on the chat backend.
type FileInfo struct {
	ID       string
	Name     string
	MimeType string
	Size     int64
}

// FileStore transfers attachments to and from the chat backend.
type FileStore interface {
	GetFileInfo(ctx context.Context, fileID string) (*FileInfo, error)
	DownloadFile(ctx context.Context, fileID string) ([]byte, error)
	UploadFile(ctx context.Context, channelID, filename string, data []byte) (string, error)
}

// Settings carries the capability configuration read once at startup.
type Settings struct {
	DefaultChatService  string
	DefaultImageService string
	DefaultAudioService string
	MaxContextTurns     int
	Instruction         string
}

// Deps bundles everything a plugin factory may need. Service maps are
// keyed by service name (e.g. "openai", "dalle") so plugins can resolve
// a --service override against the configured providers.
type Deps struct {
	Posts    Poster
	Files    FileStore
	Settings Settings

	Chat   map[string]ai.ChatService
	Images map[string]ai.ImageService
	Audio  map[string]ai.TranscriptionService

	Log zerolog.Logger
}

// Factory constructs a plugin from its dependencies.
type Factory func(deps Deps) (Plugin, error)

// BuiltinFactories returns the static table mapping a configured
// capability name to its constructor.
func BuiltinFactories() map[string]Factory {
	return map[string]Factory{
		"chat":  NewChatPlugin,
		"image": NewImagePlugin,
		"audio": NewAudioPlugin,
	}
}
