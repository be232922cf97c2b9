package llm

import (
	"context"
	"strings"
	"time"
)

type mockGenerator struct {
	response string
}

// NewMockGenerator streams a canned reply word by word. Used in development
// mode and by pipeline tests.
func NewMockGenerator(response string) Generator {
	if response == "" {
		response = "This is a mock reply. It streams a few short sentences. Goodbye for now."
	}
	return &mockGenerator{response: response}
}

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(delta string) error) error {
	words := strings.SplitAfter(m.response, " ")
	for _, w := range words {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		if err := consumer(w); err != nil {
			return err
		}
	}
	return nil
}
