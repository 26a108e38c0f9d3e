package llm

import (
	"context"
	"sync"
)

// MockClient is a scriptable Client for tests and the "mock" provider.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	mu    sync.Mutex
	calls []CompletionRequest
}

func (m *MockClient) Name() string { return m.ProviderName }

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response", Model: "mock"}, nil
}

// Calls returns a copy of every request seen so far.
func (m *MockClient) Calls() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.calls...)
}

// Scripted returns a CompleteFunc that replays the given replies in order,
// repeating the last one once exhausted.
func Scripted(replies ...string) func(context.Context, CompletionRequest) (*CompletionResponse, error) {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(replies) == 0 {
			return &CompletionResponse{Content: ""}, nil
		}
		r := replies[min(i, len(replies)-1)]
		i++
		return &CompletionResponse{Content: r, Model: "mock", Usage: Usage{InputTokens: 10, OutputTokens: 5}}, nil
	}
}
