package ai

import (
	"testing"

	"github.com/poiesic/transcripts/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
	assert.Equal(t, "gpt-4o-mini", cfg.ChatModel)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
	assert.Empty(t, cfg.APIKey)
}

func TestNewConfig_Options(t *testing.T) {
	cfg := NewConfig(
		WithProvider(ProviderCompatible),
		WithBaseURL("http://gpu-box:11434"),
		WithAPIKey("secret"),
		WithEmbeddingModel("nomic-embed-text"),
		WithChatModel("qwen2.5:3b"),
		WithRequestsPerSecond(2.5),
		WithTemperature(0.1),
	)

	assert.Equal(t, ProviderCompatible, cfg.Provider)
	assert.Equal(t, "http://gpu-box:11434", cfg.BaseURL)
	assert.Equal(t, "secret", cfg.APIKey)
	assert.Equal(t, "nomic-embed-text", cfg.EmbeddingModel)
	assert.Equal(t, "qwen2.5:3b", cfg.ChatModel)
	assert.Equal(t, 2.5, cfg.RequestsPerSecond)
	assert.Equal(t, 0.1, cfg.Temperature)
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		provider ProviderKind
		baseURL  string
		want     string
	}{
		{"openai default", ProviderOpenAI, "", OpenAIBaseURL},
		{"compatible default", ProviderCompatible, "", CompatibleBaseURL},
		{"adds v1", ProviderCompatible, "http://localhost:8080", "http://localhost:8080/v1"},
		{"trailing slash", ProviderCompatible, "http://localhost:8080/", "http://localhost:8080/v1"},
		{"already normalized", ProviderCompatible, "http://localhost:8080/v1", "http://localhost:8080/v1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Provider: tt.provider, BaseURL: tt.baseURL}
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.BaseURL)
		})
	}
}

func TestConfig_NormalizeProviderCase(t *testing.T) {
	cfg := &Config{Provider: "Compatible"}
	cfg.Normalize()
	assert.Equal(t, ProviderCompatible, cfg.Provider)

	cfg = &Config{}
	cfg.Normalize()
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
}

func TestConfig_Validate(t *testing.T) {
	t.Run("openai requires key", func(t *testing.T) {
		cfg := DefaultConfig()
		err := cfg.Validate()
		assert.ErrorIs(t, err, ErrMissingCredentials)
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})

	t.Run("openai with key", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("sk-test"))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, OpenAIBaseURL, cfg.BaseURL)
	})

	t.Run("compatible without key", func(t *testing.T) {
		cfg := NewConfig(WithProvider(ProviderCompatible))
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "none", cfg.Token())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := NewConfig(WithProvider("anthropic"), WithAPIKey("k"))
		assert.ErrorIs(t, cfg.Validate(), ErrUnknownProvider)
	})

	t.Run("missing models", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("k"), WithEmbeddingModel(""))
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

		cfg = NewConfig(WithAPIKey("k"), WithChatModel(""))
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})

	t.Run("bad ranges", func(t *testing.T) {
		cfg := NewConfig(WithAPIKey("k"), WithRequestsPerSecond(-1))
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

		cfg = NewConfig(WithAPIKey("k"), WithTemperature(3))
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
	})
}

func TestConfig_Token(t *testing.T) {
	assert.Equal(t, "sk-abc", NewConfig(WithAPIKey("sk-abc")).Token())
	assert.Equal(t, "none", (&Config{}).Token())
}
