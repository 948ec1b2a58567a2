package mock

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockCompleter is a test double for ai.Completer.
type MockCompleter struct {
	// CompleteFunc is called by Complete if set.
	// If nil, Complete returns Answer.
	CompleteFunc func(ctx context.Context, prompt string) (string, error)

	// Answer is the default reply.
	Answer string

	callCount atomic.Int64
	mu        sync.Mutex
	prompts   []string
}

// NewMockCompleter creates a mock completer that always answers with a fixed string.
func NewMockCompleter() *MockCompleter {
	return &MockCompleter{Answer: "mock answer"}
}

// WithCompleteFunc sets CompleteFunc and returns the mock for chaining.
func (m *MockCompleter) WithCompleteFunc(fn func(ctx context.Context, prompt string) (string, error)) *MockCompleter {
	m.CompleteFunc = fn
	return m
}

// Complete returns the injected or default answer.
func (m *MockCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	m.callCount.Add(1)
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Answer, nil
}

// CallCount returns the number of Complete calls.
func (m *MockCompleter) CallCount() int {
	return int(m.callCount.Load())
}

// LastPrompt returns the most recent prompt, or "".
func (m *MockCompleter) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

// Reset clears the call count, recorded prompts and injected function.
func (m *MockCompleter) Reset() {
	m.callCount.Store(0)
	m.mu.Lock()
	m.prompts = nil
	m.mu.Unlock()
	m.CompleteFunc = nil
}
