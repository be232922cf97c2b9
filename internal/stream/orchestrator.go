// Package stream drives one conversation turn end to end: it reads model
// tokens, relays them to the client immediately, segments them into
// utterances, runs synthesis through the shared gate, and re-serializes
// finished audio back onto the transport. A session always terminates
// deterministically: draining is bounded by a configurable ceiling, after
// which remaining audio is abandoned and the turn closes with whatever
// was delivered.
package stream

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/voxalabs/voxa-core/internal/config"
	"github.com/voxalabs/voxa-core/internal/delivery"
	"github.com/voxalabs/voxa-core/internal/llm"
	"github.com/voxalabs/voxa-core/internal/protocol"
	"github.com/voxalabs/voxa-core/internal/segment"
	"github.com/voxalabs/voxa-core/internal/synth"
)

// State is the lifecycle phase of a session.
type State int32

const (
	StateIdle State = iota
	StateStreaming
	StateDraining
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Transport delivers outbound frames to the client. A Send error is fatal
// to the session.
type Transport interface {
	Send(ctx context.Context, frame protocol.Frame) error
}

// Recorder persists a finished turn. Invoked once, after a session closes
// cleanly.
type Recorder interface {
	RecordTurn(ctx context.Context, conversationID, avatarID, userMessage, reply string) error
}

// EventSink receives fire-and-forget pipeline events for external
// consumers. The bus client satisfies this interface.
type EventSink interface {
	PublishAudioReady(evt protocol.AudioReady)
	PublishTurnComplete(evt protocol.TurnComplete)
}

// Options tunes per-session pipeline behavior.
type Options struct {
	DeliveryMode delivery.Mode
	Segment      segment.Options
	MinWords     int
	AlphaRatio   float64
	ChunkWait    time.Duration
	DrainTimeout time.Duration
}

func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		DeliveryMode: delivery.ParseMode(cfg.DeliveryMode),
		Segment: segment.Options{
			MinChars: cfg.MinUtteranceChars,
			MaxChars: cfg.MaxUtteranceChars,
		},
		MinWords:     cfg.MinWords,
		AlphaRatio:   cfg.AlphaRatio,
		ChunkWait:    time.Duration(cfg.ChunkWaitMS) * time.Millisecond,
		DrainTimeout: time.Duration(cfg.DrainTimeoutMS) * time.Millisecond,
	}
}

// Turn is one client request run through the pipeline.
type Turn struct {
	SessionID      string
	ConversationID string
	Avatar         Avatar
	UserMessage    string
	System         string
	History        []llm.Message
	MaxTokens      int
	Temperature    float64
	Transport      Transport
}

// TurnResult summarizes a completed session.
type TurnResult struct {
	State        State
	FullResponse string
	AudioChunks  int
}

// Orchestrator runs conversation turns against a shared synthesis backend.
// It is safe for concurrent use; per-session state lives on the stack of
// each Run call.
type Orchestrator struct {
	backend synth.Synthesizer
	opts    Options
	sink    EventSink
	rec     Recorder
	log     *slog.Logger
	metrics *streamMetrics
}

func NewOrchestrator(backend synth.Synthesizer, opts Options, sink EventSink, rec Recorder, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stream")
	if opts.ChunkWait <= 0 {
		opts.ChunkWait = time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 30 * time.Second
	}
	return &Orchestrator{
		backend: backend,
		opts:    opts,
		sink:    sink,
		rec:     rec,
		log:     logger,
		metrics: newStreamMetrics(logger),
	}
}

type relayResult struct {
	chunks int
	err    error
}

// Run executes one turn. It always returns within the drain ceiling after
// the token stream ends or ctx is cancelled. The returned TurnResult is
// valid even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, gen llm.Generator, turn Turn) (TurnResult, error) {
	logger := o.log.With(slog.String("session", turn.SessionID))
	state := StateIdle
	logger.Debug("session state", slog.String("state", state.String()))

	sessCtx, cancelSession := context.WithCancel(ctx)
	defer cancelSession()

	seg := segment.New(o.opts.Segment)
	pool := synth.NewPool(o.backend, synth.PoolOptions{
		VoiceRef:   turn.Avatar.VoiceRef,
		Language:   turn.Avatar.Language,
		MinWords:   o.opts.MinWords,
		AlphaRatio: o.opts.AlphaRatio,
	}, logger)
	queue := delivery.NewQueue(o.opts.DeliveryMode, logger)

	// Collector: moves pool results into the delivery queue and fans
	// successful chunks out to the bus.
	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for res := range pool.Results() {
			if res.Err != nil {
				o.metrics.add(sessCtx, o.metrics.synthFailures, 1)
			} else if o.sink != nil {
				o.sink.PublishAudioReady(protocol.AudioReady{
					SessionID: turn.SessionID,
					Sequence:  res.Seq,
					Text:      res.Text,
					Audio:     res.Audio.Data,
					AudioURL:  res.Audio.URL,
					Timestamp: time.Now().UTC(),
				})
			}
			queue.Push(res)
		}
	}()

	// Relay: continuously drains ready chunks to the transport so audio
	// flows while tokens are still arriving.
	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	relayCh := make(chan relayResult, 1)
	go func() {
		relayCh <- o.relay(relayCtx, queue, pushed, turn)
	}()

	// Streaming: tokens go to the client first, then into segmentation.
	var full strings.Builder
	consume := func(delta string) error {
		if delta == "" {
			return nil
		}
		if state == StateIdle {
			state = StateStreaming
			logger.Debug("session state", slog.String("state", state.String()))
		}
		if err := turn.Transport.Send(sessCtx, protocol.Frame{Type: protocol.FrameTextChunk, Text: delta}); err != nil {
			return fmt.Errorf("send text chunk: %w", err)
		}
		o.metrics.add(sessCtx, o.metrics.tokens, 1)
		full.WriteString(delta)
		for _, u := range seg.Feed(delta) {
			o.metrics.add(sessCtx, o.metrics.utterances, 1)
			pool.Submit(sessCtx, u)
		}
		return nil
	}
	genErr := gen.Generate(sessCtx, llm.Request{
		SessionID:   turn.SessionID,
		System:      turn.System,
		History:     turn.History,
		Prompt:      turn.UserMessage,
		MaxTokens:   turn.MaxTokens,
		Temperature: turn.Temperature,
	}, consume)

	// Draining happens regardless of how streaming ended.
	state = StateDraining
	logger.Debug("session state", slog.String("state", state.String()))

	if tail, ok := seg.Flush(); ok {
		o.metrics.add(sessCtx, o.metrics.utterances, 1)
		pool.Submit(sessCtx, tail)
	}

	drainCtx, cancelDrain := context.WithTimeout(context.WithoutCancel(ctx), o.opts.DrainTimeout)
	defer cancelDrain()

	if err := pool.Drain(drainCtx); err != nil {
		logger.Warn("synthesis drain hit ceiling, abandoning outstanding jobs",
			slog.Duration("ceiling", o.opts.DrainTimeout))
		o.metrics.add(drainCtx, o.metrics.drainTimeouts, 1)
		cancelSession()
	}
	go pool.Close()

	select {
	case <-pushed:
	case <-drainCtx.Done():
	}

	var rr relayResult
	select {
	case rr = <-relayCh:
	case <-drainCtx.Done():
		cancelRelay()
		rr = <-relayCh
	}
	if rr.err != nil && !errors.Is(rr.err, context.Canceled) {
		logger.Warn("audio relay ended early", slog.String("error", rr.err.Error()))
	}

	result := TurnResult{
		FullResponse: full.String(),
		AudioChunks:  rr.chunks,
	}

	// The final frames go out on a fresh context; the session context may
	// already be cancelled.
	closeCtx, cancelClose := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancelClose()

	if fatal := firstFatal(genErr, rr.err); fatal != nil {
		state = StateErrored
		result.State = state
		logger.Error("session errored", slog.String("error", fatal.Error()))
		_ = turn.Transport.Send(closeCtx, protocol.Frame{
			Type:    protocol.FrameError,
			Message: fatal.Error(),
		})
		return result, fatal
	}

	if err := turn.Transport.Send(closeCtx, protocol.Frame{
		Type:           protocol.FrameComplete,
		FullResponse:   result.FullResponse,
		ConversationID: turn.ConversationID,
	}); err != nil {
		logger.Warn("failed to send completion frame", slog.String("error", err.Error()))
	}

	if o.rec != nil && result.FullResponse != "" {
		if err := o.rec.RecordTurn(closeCtx, turn.ConversationID, turn.Avatar.ID, turn.UserMessage, result.FullResponse); err != nil {
			logger.Warn("failed to record turn", slog.String("error", err.Error()))
		}
	}
	if o.sink != nil {
		o.sink.PublishTurnComplete(protocol.TurnComplete{
			SessionID:      turn.SessionID,
			ConversationID: turn.ConversationID,
			FullResponse:   result.FullResponse,
			Chunks:         result.AudioChunks,
			Timestamp:      time.Now().UTC(),
		})
	}

	state = StateClosed
	result.State = state
	logger.Info("session closed",
		slog.Int("audio_chunks", result.AudioChunks),
		slog.Int("response_chars", len(result.FullResponse)))
	return result, nil
}

// relay pumps ready chunks from the queue to the transport. It exits when
// the collector has finished and the queue is empty, when the transport
// fails, or when ctx is cancelled (force-flushing held chunks first).
func (o *Orchestrator) relay(ctx context.Context, queue *delivery.Queue, pushed <-chan struct{}, turn Turn) relayResult {
	sent := 0
	for {
		res, ok := queue.NextReady(ctx, o.opts.ChunkWait)
		if ok {
			if err := o.sendChunk(ctx, turn, res); err != nil {
				return relayResult{chunks: sent, err: err}
			}
			sent++
			continue
		}
		if ctx.Err() != nil {
			sent += o.forceFlush(turn, queue)
			return relayResult{chunks: sent, err: ctx.Err()}
		}
		select {
		case <-pushed:
			if queue.Empty() {
				return relayResult{chunks: sent}
			}
		default:
		}
	}
}

// forceFlush delivers whatever successful chunks the queue still holds,
// best effort, on a short grace context.
func (o *Orchestrator) forceFlush(turn Turn, queue *delivery.Queue) int {
	held := queue.ForceFlush()
	if len(held) == 0 {
		return 0
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	sent := 0
	for _, res := range held {
		if err := o.sendChunk(flushCtx, turn, res); err != nil {
			break
		}
		sent++
	}
	return sent
}

func (o *Orchestrator) sendChunk(ctx context.Context, turn Turn, res synth.Result) error {
	frame := protocol.Frame{
		Type:     protocol.FrameAudioChunk,
		Text:     res.Text,
		Sequence: res.Seq,
		AudioURL: res.Audio.URL,
	}
	if len(res.Audio.Data) > 0 {
		frame.Audio = base64.StdEncoding.EncodeToString(res.Audio.Data)
	}
	if err := turn.Transport.Send(ctx, frame); err != nil {
		return fmt.Errorf("send audio chunk: %w", err)
	}
	o.metrics.add(ctx, o.metrics.chunks, 1)
	return nil
}

// firstFatal picks the error that moves a session to Errored. Context
// cancellation of the caller is a normal shutdown, not a session fault.
func firstFatal(genErr, relayErr error) error {
	if genErr != nil && !errors.Is(genErr, context.Canceled) {
		return genErr
	}
	if relayErr != nil && !errors.Is(relayErr, context.Canceled) && !errors.Is(relayErr, context.DeadlineExceeded) {
		return relayErr
	}
	return nil
}
