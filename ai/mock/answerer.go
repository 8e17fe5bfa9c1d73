package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/transcripts/ai"
)

// MockAnswerer is a test double for ai.Answerer.
type MockAnswerer struct {
	// AnswerFunc is called by Answer if set.
	// If nil, echoes the question and the number of passages.
	AnswerFunc func(ctx context.Context, question string, passages []ai.Passage) (string, error)

	mu        sync.Mutex
	callCount int
	last      []ai.Passage
}

// NewMockAnswerer creates a mock answerer with default echo behavior.
func NewMockAnswerer() *MockAnswerer {
	return &MockAnswerer{}
}

// WithAnswerFunc injects custom behavior.
func (m *MockAnswerer) WithAnswerFunc(fn func(ctx context.Context, question string, passages []ai.Passage) (string, error)) *MockAnswerer {
	m.AnswerFunc = fn
	return m
}

// Answer returns a canned answer.
func (m *MockAnswerer) Answer(ctx context.Context, question string, passages []ai.Passage) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.last = append([]ai.Passage(nil), passages...)
	m.mu.Unlock()

	if m.AnswerFunc != nil {
		return m.AnswerFunc(ctx, question, passages)
	}
	return fmt.Sprintf("answer to %q from %d passages", question, len(passages)), nil
}

// CallCount returns the number of times Answer was called.
func (m *MockAnswerer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastPassages returns the passages from the most recent call.
func (m *MockAnswerer) LastPassages() []ai.Passage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
