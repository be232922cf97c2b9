package transport

import (
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxalabs/voxa-core/internal/delivery"
	"github.com/voxalabs/voxa-core/internal/llm"
	"github.com/voxalabs/voxa-core/internal/protocol"
	"github.com/voxalabs/voxa-core/internal/segment"
	"github.com/voxalabs/voxa-core/internal/stream"
	"github.com/voxalabs/voxa-core/internal/synth"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestHandler(t *testing.T, reply string) *Handler {
	t.Helper()
	gate := synth.NewGate(synth.NewMockSynth(time.Millisecond), nil, testLogger())
	orc := stream.NewOrchestrator(gate, stream.Options{
		DeliveryMode: delivery.Strict,
		Segment:      segment.Options{MinChars: 3, MaxChars: 220},
		MinWords:     1,
		AlphaRatio:   0.3,
		ChunkWait:    50 * time.Millisecond,
		DrainTimeout: 3 * time.Second,
	}, nil, nil, testLogger())
	avatars := stream.NewStaticDirectory(stream.Avatar{Name: "Ava", RoleTitle: "assistant", Description: "A helpful avatar", VoiceRef: "ava.wav"})
	return NewHandler(orc, llm.NewMockGenerator(reply), avatars, nil, Options{HistoryLimit: 10}, testLogger())
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readTurn collects frames until the terminal complete or error frame.
func readTurn(t *testing.T, conn *websocket.Conn) []protocol.Frame {
	t.Helper()
	var frames []protocol.Frame
	deadline := time.Now().Add(10 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var f protocol.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		frames = append(frames, f)
		if f.Type == protocol.FrameComplete || f.Type == protocol.FrameError {
			return frames
		}
	}
}

func TestChatTurnOverWebSocket(t *testing.T) {
	const reply = "Hello there. How are you?"
	srv := httptest.NewServer(newTestHandler(t, reply))
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(protocol.ChatRequest{AvatarID: "ava", Message: "hi"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	frames := readTurn(t, conn)
	var text strings.Builder
	audio := 0
	for _, f := range frames {
		switch f.Type {
		case protocol.FrameTextChunk:
			text.WriteString(f.Text)
		case protocol.FrameAudioChunk:
			audio++
		}
	}
	if text.String() != reply {
		t.Fatalf("text chunks reassemble to %q, want %q", text.String(), reply)
	}
	if audio == 0 {
		t.Fatal("expected audio chunks")
	}

	last := frames[len(frames)-1]
	if last.Type != protocol.FrameComplete || last.FullResponse != reply {
		t.Fatalf("unexpected terminal frame: %+v", last)
	}
	if last.ConversationID == "" {
		t.Fatal("complete frame should carry a conversation ID")
	}
}

func TestEmptyMessageIsRejected(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t, "unused"))
	defer srv.Close()

	conn := dial(t, srv)
	if err := conn.WriteJSON(protocol.ChatRequest{AvatarID: "ava"}); err != nil {
		t.Fatalf("write request: %v", err)
	}
	frames := readTurn(t, conn)
	if len(frames) != 1 || frames[0].Type != protocol.FrameError {
		t.Fatalf("expected a single error frame, got %+v", frames)
	}
}

func TestConnectionHandlesSequentialTurns(t *testing.T) {
	const reply = "Sure thing."
	srv := httptest.NewServer(newTestHandler(t, reply))
	defer srv.Close()

	conn := dial(t, srv)
	for i := 0; i < 2; i++ {
		if err := conn.WriteJSON(protocol.ChatRequest{AvatarID: "ava", Message: "again"}); err != nil {
			t.Fatalf("write request %d: %v", i, err)
		}
		frames := readTurn(t, conn)
		last := frames[len(frames)-1]
		if last.Type != protocol.FrameComplete || last.FullResponse != reply {
			t.Fatalf("turn %d terminal frame: %+v", i, last)
		}
	}
}
