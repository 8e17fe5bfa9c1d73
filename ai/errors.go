package ai

import (
	"errors"
	"fmt"

	"github.com/poiesic/transcripts/core"
)

var (
	// ErrInvalidConfig indicates a malformed AI configuration.
	ErrInvalidConfig = fmt.Errorf("%w: ai config", core.ErrConfiguration)

	// ErrMissingCredentials indicates the hosted provider was selected without an API key.
	ErrMissingCredentials = fmt.Errorf("%w: missing api key", ErrInvalidConfig)

	// ErrUnknownProvider indicates an unsupported provider kind.
	ErrUnknownProvider = fmt.Errorf("%w: unknown provider", ErrInvalidConfig)

	// ErrEmptyResponse indicates the provider returned no usable content.
	ErrEmptyResponse = errors.New("empty response from provider")
)
