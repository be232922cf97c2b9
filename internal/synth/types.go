package synth

import (
	"context"
	"errors"
	"strings"
)

// Request contains parameters for one synthesis call.
type Request struct {
	Text     string
	VoiceRef string // reference audio for voice cloning (path or URL)
	Language string
}

// Audio is the result of a synthesis call. Byte-returning backends fill
// Data; uploading adapters fill URL instead.
type Audio struct {
	Data []byte
	URL  string
}

// Synthesizer is the contract for producing speech from text.
// The underlying acceleration device is not safe under concurrent
// invocation; callers go through the Gate rather than hitting a
// Synthesizer directly.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Audio, error)
}

// CacheClearer resets device-level state after a resource fault.
// Backends that hold no device cache can ignore it.
type CacheClearer interface {
	ClearCache(ctx context.Context) error
}

// ErrNotSpeakable marks an utterance dropped by sanitization. It is
// informational: the delivery stage skips the sequence number, the stream
// continues.
var ErrNotSpeakable = errors.New("synth: text not speakable")

// IsResourceFault reports whether err looks like a device-level fault
// (driver or accelerator error) rather than an ordinary synthesis failure.
func IsResourceFault(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "cuda") ||
		strings.Contains(msg, "device") ||
		strings.Contains(msg, "assertion") ||
		strings.Contains(msg, "out of memory")
}
