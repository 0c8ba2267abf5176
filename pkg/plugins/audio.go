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

// AudioPlugin transcribes an audio attachment and posts the transcript
// back to the originating channel.
type AudioPlugin struct {
	services       map[string]ai.TranscriptionService
	defaultService string
	posts          Poster
	files          FileStore
	log            zerolog.Logger
}

// NewAudioPlugin constructs the audio capability.
func NewAudioPlugin(deps Deps) (Plugin, error) {
	if len(deps.Audio) == 0 {
		return nil, fmt.Errorf("audio plugin: no transcription services configured")
	}
	return &AudioPlugin{
		services:       deps.Audio,
		defaultService: deps.Settings.DefaultAudioService,
		posts:          deps.Posts,
		files:          deps.Files,
		log:            deps.Log.With().Str("plugin", "audio").Logger(),
	}, nil
}

func (p *AudioPlugin) Name() string        { return "audio" }
func (p *AudioPlugin) Description() string { return "Transcribe audio files" }
func (p *AudioPlugin) Usage() string {
	return "/audio <file_id> [--service <service_name>]"
}

func (p *AudioPlugin) Execute(ctx context.Context, args []string, channelID, userID string) string {
	if len(args) == 0 {
		return fmt.Sprintf("Please provide a file ID for the audio file. Usage: %s", p.Usage())
	}

	fileID := args[0]
	service := p.defaultService
	if len(args) > 2 && args[1] == "--service" {
		service = args[2]
	}

	svc, ok := p.services[service]
	if !ok {
		return fmt.Sprintf("Unknown service: %s. Available services: %s",
			service, strings.Join(p.serviceNames(), ", "))
	}

	info, err := p.files.GetFileInfo(ctx, fileID)
	if err != nil {
		p.log.Error().Err(err).Str("file_id", fileID).Msg("Failed to get file info")
		return "Failed to get file information. Please check if the file ID is correct."
	}
	if !strings.HasPrefix(info.MimeType, "audio/") {
		return "The provided file is not an audio file."
	}

	audio, err := p.files.DownloadFile(ctx, fileID)
	if err != nil {
		p.log.Error().Err(err).Str("file_id", fileID).Msg("Failed to download file")
		return "Failed to download the audio file."
	}

	transcript, err := svc.Transcribe(ctx, info.Name, info.MimeType, audio)
	if err != nil {
		p.log.Error().Err(err).Str("service", service).Str("file_id", fileID).
			Msg("Transcription failed")
		return fmt.Sprintf("Failed to transcribe the audio using %s.", service)
	}

	message := fmt.Sprintf("Transcription by %s:\n\n%s", service, transcript)
	if err := p.posts.PostMessage(ctx, channelID, message); err != nil {
		p.log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to post transcript")
	}
	return ""
}

func (p *AudioPlugin) Initialize() error {
	p.log.Info().Str("default_service", p.defaultService).Msg("Initialized audio plugin")
	return nil
}

func (p *AudioPlugin) Cleanup() error {
	p.log.Info().Msg("Cleaning up audio plugin")
	return nil
}

func (p *AudioPlugin) serviceNames() []string {
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
