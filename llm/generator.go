package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Classifier answers a single system+user prompt pair with free text. Callers
// must run the answer through ParseCategory or ParseObject before using it.
type Classifier interface {
	Classify(ctx context.Context, system, prompt string) (string, error)
}

var ErrNotConfigured = errors.New("llm: api key not configured")

// Generator is a Classifier backed by an OpenAI compatible chat endpoint
// (Perplexity by default).
type Generator struct {
	// Chat is the underlying chat model.
	Chat            llms.ChatLLM
	model           string
	temperature     float64
	maxOutputTokens int
	timeout         time.Duration
}

// NewGenerator creates a classifier for the given model and endpoint.
func NewGenerator(apiKey, model, baseURL string) (*Generator, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}

	chat, err := openai.NewChat(
		openai.WithToken(apiKey),
		openai.WithModel(model),
		openai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, err
	}

	return &Generator{
		Chat:            chat,
		model:           model,
		temperature:     0,
		maxOutputTokens: 400,
		timeout:         30 * time.Second,
	}, nil
}

func (g *Generator) Classify(ctx context.Context, system, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	input := []schema.ChatMessage{
		schema.SystemChatMessage{Text: system},
		schema.HumanChatMessage{Text: prompt},
	}

	res, err := g.Chat.Call(ctx, input, llms.WithTemperature(g.temperature), llms.WithMaxTokens(g.maxOutputTokens))
	if err != nil {
		return "", fmt.Errorf("%s: %w", g.model, err)
	}

	return res, nil
}

// Unavailable stands in for the classifier when no API key is configured.
// Every call fails, so callers treat it as an outage rather than an answer.
type Unavailable struct{}

func (Unavailable) Classify(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}
