// Copyright 2024-2026 Aiku AI

package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// OpenAIConfig holds the settings for the OpenAI adapter.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// OpenAI implements ChatService, ImageService and TranscriptionService
// against the OpenAI API (or any compatible endpoint via BaseURL).
type OpenAI struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	log         zerolog.Logger
}

var (
	_ ChatService          = (*OpenAI)(nil)
	_ ImageService         = (*OpenAI)(nil)
	_ TranscriptionService = (*OpenAI)(nil)
)

// NewOpenAI creates the OpenAI adapter.
func NewOpenAI(cfg OpenAIConfig, log zerolog.Logger) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	return &OpenAI{
		client:      openai.NewClient(opts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: cfg.Temperature,
		log:         log.With().Str("component", "openai").Logger(),
	}, nil
}

// Model returns the configured chat model name.
func (o *OpenAI) Model() string {
	return o.model
}

// Complete sends the prompt history to the chat completions endpoint and
// returns the assistant reply.
func (o *OpenAI) Complete(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:               o.model,
		Messages:            convertMessages(messages),
		MaxCompletionTokens: openai.Int(int64(o.maxTokens)),
	}
	// o1 models fix temperature at 1 and reject the parameter.
	if o.model != "o1-mini" && o.model != "o1-preview" {
		params.Temperature = openai.Float(o.temperature)
	}

	start := time.Now()
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices in response")
	}

	o.log.Debug().
		Str("model", o.model).
		Dur("duration", time.Since(start)).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Chat completion finished")

	return resp.Choices[0].Message.Content, nil
}

// Generate renders a prompt with DALL-E 3 and returns the decoded image bytes.
func (o *OpenAI) Generate(ctx context.Context, prompt string) ([]byte, error) {
	resp, err := o.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Model:          openai.ImageModelDallE3,
		Prompt:         prompt,
		Quality:        openai.ImageGenerateParamsQualityHD,
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		N:              openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("image generation: empty response")
	}

	img, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("image generation: decode b64 payload: %w", err)
	}
	return img, nil
}

// Transcribe sends audio content to the Whisper endpoint.
func (o *OpenAI) Transcribe(ctx context.Context, filename, mimeType string, audio []byte) (string, error) {
	resp, err := o.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(audio), filename, mimeType),
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return resp.Text, nil
}

func convertMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}
