// Package transport exposes the streaming pipeline over a WebSocket
// endpoint. Each connection carries a sequence of chat requests; frames for
// one turn are fully delivered before the next request is read.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxalabs/voxa-core/internal/llm"
	"github.com/voxalabs/voxa-core/internal/protocol"
	"github.com/voxalabs/voxa-core/internal/stream"
)

const writeTimeout = 10 * time.Second

// HistoryProvider supplies prior turns for prompt context. The
// conversation store satisfies this interface; a disabled store returns
// empty history.
type HistoryProvider interface {
	EnsureConversation(ctx context.Context, conversationID, avatarID string) error
	History(ctx context.Context, conversationID string, limit int) ([]llm.Message, error)
}

// Options tunes per-turn generation parameters.
type Options struct {
	HistoryLimit int
	MaxTokens    int
	Temperature  float64
}

// Handler upgrades HTTP requests to WebSocket chat sessions.
type Handler struct {
	orc      *stream.Orchestrator
	gen      llm.Generator
	avatars  stream.AvatarDirectory
	history  HistoryProvider
	opts     Options
	upgrader websocket.Upgrader
	log      *slog.Logger
}

func NewHandler(orc *stream.Orchestrator, gen llm.Generator, avatars stream.AvatarDirectory, history HistoryProvider, opts Options, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Handler{
		orc:     orc,
		gen:     gen,
		avatars: avatars,
		history: history,
		opts:    opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		log: logger.With(slog.String("component", "transport")),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	ws := &wsConn{conn: conn}
	for {
		var req protocol.ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if err := h.runTurn(r.Context(), ws, req); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			// Turn-level failures were already reported on the wire; only a
			// dead connection ends the loop.
			h.log.Warn("turn failed", slog.String("error", err.Error()))
		}
	}
}

func (h *Handler) runTurn(ctx context.Context, ws *wsConn, req protocol.ChatRequest) error {
	if req.Message == "" {
		return ws.Send(ctx, protocol.Frame{Type: protocol.FrameError, Message: "message is required"})
	}

	avatar, err := h.avatars.Avatar(ctx, req.AvatarID)
	if err != nil {
		return ws.Send(ctx, protocol.Frame{Type: protocol.FrameError, Message: "unknown avatar"})
	}
	if req.Language != "" {
		avatar.Language = req.Language
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	var history []llm.Message
	if h.history != nil {
		if err := h.history.EnsureConversation(ctx, conversationID, avatar.ID); err != nil {
			h.log.Warn("ensure conversation failed", slog.String("error", err.Error()))
		}
		if history, err = h.history.History(ctx, conversationID, h.opts.HistoryLimit); err != nil {
			h.log.Warn("load history failed", slog.String("error", err.Error()))
			history = nil
		}
	}

	turn := stream.Turn{
		SessionID:      uuid.NewString(),
		ConversationID: conversationID,
		Avatar:         avatar,
		UserMessage:    req.Message,
		System:         llm.SystemPrompt(avatar.Name, avatar.RoleTitle, avatar.Description, avatar.PromptTemplate),
		History:        history,
		MaxTokens:      h.opts.MaxTokens,
		Temperature:    h.opts.Temperature,
		Transport:      ws,
	}

	_, err = h.orc.Run(ctx, h.gen, turn)
	return err
}

// wsConn serializes concurrent frame writes onto one connection. The relay
// goroutine and the token path both send through it.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, frame protocol.Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(frame)
}
