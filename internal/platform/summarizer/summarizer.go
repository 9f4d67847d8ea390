// Package summarizer turns consultation transcripts into clinical summaries
// using an OpenAI-compatible chat completions API.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrDisabled is returned when no API key has been configured.
var ErrDisabled = errors.New("summarizer is disabled")

// ErrEmptyTranscript is returned for blank input.
var ErrEmptyTranscript = errors.New("transcript is empty")

// Summarizer produces a summary of a transcript.
type Summarizer interface {
	Summarize(ctx context.Context, transcript string) (string, error)
}

const systemPrompt = "You are a clinical documentation assistant. Summarize the doctor-patient " +
	"consultation transcript for the medical record. Use short sections: Presenting complaint, " +
	"History, Assessment, Plan, Follow-up. Do not invent findings that are not in the transcript."

// maxTranscriptRunes bounds the prompt size.
const maxTranscriptRunes = 48000

type client struct {
	api   *openai.Client
	model string
}

// New returns a Summarizer for the API rooted at baseURL, for example
// "https://api.openai.com/v1". An empty apiKey yields a Summarizer that
// always returns ErrDisabled.
func New(baseURL, apiKey, model string) Summarizer {
	if apiKey == "" {
		return Disabled{}
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: 90 * time.Second}
	return &client{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *client) Summarize(ctx context.Context, transcript string) (string, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return "", ErrEmptyTranscript
	}
	if r := []rune(transcript); len(r) > maxTranscriptRunes {
		transcript = string(r[:maxTranscriptRunes])
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer request: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", errors.New("summarizer returned no content")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Disabled always returns ErrDisabled.
type Disabled struct{}

func (Disabled) Summarize(context.Context, string) (string, error) { return "", ErrDisabled }
