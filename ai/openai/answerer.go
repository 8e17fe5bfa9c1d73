package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/transcripts/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Answerer implements ai.Answerer using an OpenAI-compatible chat model.
type Answerer struct {
	client      *openai.LLM
	temperature float64
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// newAnswerer is an internal constructor that returns the concrete type.
func newAnswerer(config *ai.Config, limiter *rate.Limiter) (*Answerer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(config.Token()),
		openai.WithModel(config.ChatModel),
	)
	if err != nil {
		return nil, err
	}

	return &Answerer{
		client:      client,
		temperature: config.Temperature,
		limiter:     limiter,
		logger:      slog.Default().With("component", "openai-answerer", "model", config.ChatModel),
	}, nil
}

// NewAnswerer creates a new answerer using the provided configuration.
//
// Returns ai.Answerer interface to enforce abstraction.
func NewAnswerer(config *ai.Config) (ai.Answerer, error) {
	return newAnswerer(config, newLimiter(config.RequestsPerSecond))
}

// Answer asks the chat model to answer question from passages.
func (a *Answerer) Answer(ctx context.Context, question string, passages []ai.Passage) (string, error) {
	if err := wait(ctx, a.limiter); err != nil {
		return "", err
	}

	a.logger.Debug("answering question", "passages", len(passages))

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(answerSystemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(buildAnswerPrompt(question, passages))},
		},
	}

	response, err := a.client.GenerateContent(ctx, content, llms.WithTemperature(a.temperature))
	if err != nil {
		a.logger.Error("failed to generate answer", "err", err)
		return "", err
	}
	if len(response.Choices) == 0 {
		return "", ai.ErrEmptyResponse
	}

	answer := strings.TrimSpace(response.Choices[0].Content)
	if answer == "" {
		return "", ai.ErrEmptyResponse
	}
	return answer, nil
}
