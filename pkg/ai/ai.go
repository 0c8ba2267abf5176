// Copyright 2024-2026 Aiku AI

// Package ai provides adapters for external AI services. Each capability
// (chat completion, image generation, audio transcription) is exposed as a
// narrow interface so plugins stay decoupled from any concrete vendor SDK.
package ai

import "context"

// Message roles for chat completion prompts.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged turn in a chat completion prompt.
type Message struct {
	Role    string
	Content string
}

// ChatService generates a completion for an ordered prompt history.
type ChatService interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// ImageService renders a prompt into an encoded image (PNG bytes).
type ImageService interface {
	Generate(ctx context.Context, prompt string) ([]byte, error)
}

// TranscriptionService converts audio content into text.
type TranscriptionService interface {
	Transcribe(ctx context.Context, filename, mimeType string, audio []byte) (string, error)
}
