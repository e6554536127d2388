package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
// Responses, when set, are returned one per call; the last one repeats.
type MockClient struct {
	Response  string
	Responses []string
	Err       error
	Hook      func(ctx context.Context) error

	mu      sync.Mutex
	calls   int
	prompts []string
}

func (m *MockClient) Evaluate(ctx context.Context, systemPrompt, prompt string) (string, error) {
	m.mu.Lock()
	idx := m.calls
	m.calls++
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()

	if m.Hook != nil {
		if err := m.Hook(ctx); err != nil {
			return "", err
		}
	}
	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) > 0 {
		if idx >= len(m.Responses) {
			idx = len(m.Responses) - 1
		}
		return m.Responses[idx], nil
	}
	return m.Response, nil
}

// Calls returns how many times Evaluate was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastPrompt returns the most recent user prompt.
func (m *MockClient) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}
