package synth

import (
	"context"
	"time"
)

type mockSynth struct {
	delay time.Duration
}

// NewMockSynth returns a Synthesizer that produces a tiny silent clip after
// a short delay. Used in development mode and by higher-level tests.
func NewMockSynth(delay time.Duration) Synthesizer {
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &mockSynth{delay: delay}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	case <-time.After(m.delay):
	}
	return Audio{Data: []byte("RIFF")}, nil
}
