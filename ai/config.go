// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package ai

import (
	"fmt"
	"strings"
)

// ProviderKind selects how the embedding and answering services are reached.
type ProviderKind string

const (
	// ProviderOpenAI talks to the hosted OpenAI API and requires an API key.
	ProviderOpenAI ProviderKind = "openai"

	// ProviderCompatible talks to any OpenAI-compatible server (Ollama,
	// LocalAI, vLLM). The API key is optional.
	ProviderCompatible ProviderKind = "compatible"
)

const (
	// OpenAIBaseURL is the hosted API endpoint.
	OpenAIBaseURL = "https://api.openai.com/v1"

	// CompatibleBaseURL is the default endpoint for a local compatible server.
	CompatibleBaseURL = "http://localhost:11434/v1"

	// DefaultTemperature is the sampling temperature used for answers.
	DefaultTemperature = 0.4

	// noToken is sent to compatible servers that do not check credentials.
	noToken = "none"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the service flavour. Default: ProviderOpenAI
	Provider ProviderKind

	// BaseURL is the API root. /v1 is appended by Normalize when missing.
	// Empty selects the provider default.
	BaseURL string

	// APIKey authenticates against the provider. Required for ProviderOpenAI.
	APIKey string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "text-embedding-3-small", "nomic-embed-text"
	EmbeddingModel string

	// ChatModel is the model identifier used to answer questions.
	// Example: "gpt-4o-mini", "qwen2.5:3b"
	ChatModel string

	// RequestsPerSecond caps calls to the provider. Zero disables pacing.
	RequestsPerSecond float64

	// Temperature is the sampling temperature for answers.
	Temperature float64
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the provider kind.
func WithProvider(kind ProviderKind) ConfigOption {
	return func(c *Config) {
		c.Provider = kind
	}
}

// WithBaseURL sets the API root URL.
func WithBaseURL(url string) ConfigOption {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatModel sets the chat model identifier.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithRequestsPerSecond caps the provider call rate.
func WithRequestsPerSecond(rps float64) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
	}
}

// WithTemperature sets the answer sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// DefaultConfig returns a Config targeting the hosted OpenAI API.
// The API key still has to be supplied.
func DefaultConfig() *Config {
	return &Config{
		Provider:       ProviderOpenAI,
		EmbeddingModel: "text-embedding-3-small",
		ChatModel:      "gpt-4o-mini",
		Temperature:    DefaultTemperature,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//   cfg := NewConfig(
//       WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//       WithEmbeddingModel("text-embedding-3-large"),
//   )
//
// Example with a local server:
//   cfg := NewConfig(
//       WithProvider(ProviderCompatible),
//       WithBaseURL("http://localhost:11434"),
//       WithEmbeddingModel("nomic-embed-text"),
//   )
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It fills the provider default URL and adds the /v1 suffix if missing.
func (c *Config) Normalize() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	c.Provider = ProviderKind(strings.ToLower(string(c.Provider)))

	if c.BaseURL == "" {
		switch c.Provider {
		case ProviderOpenAI:
			c.BaseURL = OpenAIBaseURL
		case ProviderCompatible:
			c.BaseURL = CompatibleBaseURL
		}
	}
	if c.BaseURL != "" && !strings.HasSuffix(c.BaseURL, "/v1") {
		c.BaseURL = strings.TrimSuffix(c.BaseURL, "/") + "/v1"
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI:
		if c.APIKey == "" {
			return ErrMissingCredentials
		}
	case ProviderCompatible:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
	}

	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: embedding model is required", ErrInvalidConfig)
	}
	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat model is required", ErrInvalidConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests per second must not be negative", ErrInvalidConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidConfig)
	}
	return nil
}

// Token returns the bearer token to send. Compatible servers without a key
// receive a placeholder.
func (c *Config) Token() string {
	if c.APIKey == "" {
		return noToken
	}
	return c.APIKey
}
