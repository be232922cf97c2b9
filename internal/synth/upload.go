package synth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/voxalabs/voxa-core/internal/storage"
)

// uploadSynth wraps a byte-returning Synthesizer and pushes each clip to
// object storage, returning a public URL instead of raw bytes. It sits
// outside the Gate so uploads never hold the synthesis device.
type uploadSynth struct {
	inner Synthesizer
	store storage.Uploader
}

// NewUploadSynth returns the URL-returning adapter over inner.
func NewUploadSynth(inner Synthesizer, store storage.Uploader) Synthesizer {
	return &uploadSynth{inner: inner, store: store}
}

func (u *uploadSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	audio, err := u.inner.Synthesize(ctx, req)
	if err != nil {
		return Audio{}, err
	}
	key := fmt.Sprintf("%s.wav", uuid.NewString())
	url, err := u.store.Upload(ctx, key, "audio/wav", audio.Data)
	if err != nil {
		return Audio{}, fmt.Errorf("upload synthesized audio: %w", err)
	}
	return Audio{URL: url}, nil
}
