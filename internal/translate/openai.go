package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIBackend translates with a chat completion model.
type OpenAIBackend struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIBackend builds a backend. An empty apiKey is rejected; callers run without a backend instead.
func NewOpenAIBackend(apiKey, model string, timeout time.Duration) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, errors.New("translate: api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIBackend{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		timeout: timeout,
	}, nil
}

func singlePrompt(text, src, tgt string) string {
	return fmt.Sprintf(
		"Translate the following chat message from %s to %s. "+
			"Reply with the translation only, keep emojis, names and formatting.\n\n%s",
		src, tgt, text)
}

func batchPrompt(texts []string, src, tgt string) (string, error) {
	payload, err := json.Marshal(texts)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"Translate each string of this JSON array from %s to %s. "+
			"Reply with a JSON array of the same length and order, nothing else.\n\n%s",
		src, tgt, payload), nil
}

func (b *OpenAIBackend) complete(ctx context.Context, prompt string) (string, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}
	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(b.model),
		Temperature: openai.Float(0),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion: no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Translate implements Backend.
func (b *OpenAIBackend) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	return b.complete(ctx, singlePrompt(text, src, tgt))
}

// TranslateBatch implements Backend.
func (b *OpenAIBackend) TranslateBatch(ctx context.Context, texts []string, src, tgt string) ([]string, error) {
	prompt, err := batchPrompt(texts, src, tgt)
	if err != nil {
		return nil, err
	}
	raw, err := b.complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return parseBatch(raw, len(texts))
}

// parseBatch decodes a JSON array reply, tolerating a fenced code block around it.
func parseBatch(raw string, want int) ([]string, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("decode batch reply: %w", err)
	}
	if len(out) != want {
		return nil, fmt.Errorf("batch reply has %d items, want %d", len(out), want)
	}
	return out, nil
}
