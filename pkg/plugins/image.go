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

// ImagePlugin renders a text prompt into an image and posts it to the
// originating channel as a file attachment.
type ImagePlugin struct {
	services       map[string]ai.ImageService
	defaultService string
	posts          Poster
	files          FileStore
	log            zerolog.Logger
}

// NewImagePlugin constructs the image capability.
func NewImagePlugin(deps Deps) (Plugin, error) {
	if len(deps.Images) == 0 {
		return nil, fmt.Errorf("image plugin: no image services configured")
	}
	return &ImagePlugin{
		services:       deps.Images,
		defaultService: deps.Settings.DefaultImageService,
		posts:          deps.Posts,
		files:          deps.Files,
		log:            deps.Log.With().Str("plugin", "image").Logger(),
	}, nil
}

func (p *ImagePlugin) Name() string        { return "image" }
func (p *ImagePlugin) Description() string { return "Generate images from text prompts" }
func (p *ImagePlugin) Usage() string {
	return "/image [--service <service_name>] <prompt>"
}

func (p *ImagePlugin) Execute(ctx context.Context, args []string, channelID, userID string) string {
	service := p.defaultService
	var prompt string
	if len(args) > 0 && args[0] == "--service" {
		if len(args) < 3 {
			return "Please specify a service name and a prompt after --service"
		}
		service = args[1]
		prompt = strings.Join(args[2:], " ")
	} else {
		prompt = strings.Join(args, " ")
	}
	if prompt == "" {
		return fmt.Sprintf("Please provide a prompt for the image. Usage: %s", p.Usage())
	}

	svc, ok := p.services[service]
	if !ok {
		return fmt.Sprintf("Unknown service: %s. Available services: %s",
			service, strings.Join(p.serviceNames(), ", "))
	}

	img, err := svc.Generate(ctx, prompt)
	if err != nil {
		p.log.Error().Err(err).Str("service", service).Msg("Image generation failed")
		return "I'm sorry, I couldn't generate that image."
	}

	fileID, err := p.files.UploadFile(ctx, channelID, "image.png", img)
	if err != nil {
		p.log.Error().Err(err).Str("channel_id", channelID).Msg("Image upload failed")
		return "I'm sorry, I couldn't upload the generated image."
	}

	message := fmt.Sprintf("Image by %s: %s", service, prompt)
	if err := p.posts.PostMessageWithFiles(ctx, channelID, message, []string{fileID}); err != nil {
		p.log.Error().Err(err).Str("channel_id", channelID).Msg("Failed to post generated image")
	}
	return ""
}

func (p *ImagePlugin) Initialize() error {
	p.log.Info().Str("default_service", p.defaultService).Msg("Initialized image plugin")
	return nil
}

func (p *ImagePlugin) Cleanup() error {
	p.log.Info().Msg("Cleaning up image plugin")
	return nil
}

func (p *ImagePlugin) serviceNames() []string {
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
