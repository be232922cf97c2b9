package protocol

import "time"

// Outbound frame types sent to the client over the transport.
const (
	FrameTextChunk  = "text_chunk"
	FrameAudioChunk = "audio_chunk"
	FrameComplete   = "complete"
	FrameError      = "error"
)

// ChatRequest is the inbound frame that opens a conversation turn.
type ChatRequest struct {
	AvatarID       string `json:"avatar_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Language       string `json:"language,omitempty"`
}

// Frame is an outbound transport message. Audio carries base64-encoded bytes
// when present; AudioURL is set instead when the synthesizer uploads to
// object storage.
type Frame struct {
	Type           string `json:"type"`
	Text           string `json:"text,omitempty"`
	Audio          string `json:"audio,omitempty"`
	AudioURL       string `json:"audio_url,omitempty"`
	Sequence       uint64 `json:"sequence,omitempty"`
	FullResponse   string `json:"full_response,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message,omitempty"`
}

// AudioReady is broadcast on the bus for downstream consumers (for example a
// lip-sync renderer) whenever an audio chunk has been synthesized.
type AudioReady struct {
	SessionID string    `json:"session_id"`
	Sequence  uint64    `json:"sequence"`
	Text      string    `json:"text"`
	Audio     []byte    `json:"audio,omitempty"`
	AudioURL  string    `json:"audio_url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnComplete is broadcast on the bus when a session finishes a turn.
type TurnComplete struct {
	SessionID      string    `json:"session_id"`
	ConversationID string    `json:"conversation_id"`
	FullResponse   string    `json:"full_response"`
	Chunks         int       `json:"chunks"`
	Timestamp      time.Time `json:"timestamp"`
}

const (
	SubjectAudioReady   = "voxa.audio.ready"
	SubjectTurnComplete = "voxa.turn.complete"
)
