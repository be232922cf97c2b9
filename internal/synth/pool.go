package synth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/voxalabs/voxa-core/internal/segment"
)

// Result is published for every submitted utterance: a completed audio
// chunk, or a failure record (Err != nil) that tells the delivery stage to
// skip the sequence number.
type Result struct {
	Seq   uint64
	Text  string
	Audio Audio
	Err   error
}

// PoolOptions configure sanitization thresholds for submitted utterances.
type PoolOptions struct {
	VoiceRef   string
	Language   string
	MinWords   int
	AlphaRatio float64
}

// Pool runs one concurrent synthesis task per submitted utterance.
// Submission-level concurrency is unbounded; the shared Gate throttles
// execution to a single job so the next call is already queued the moment
// the previous one releases the device. Completed results go to an internal
// channel consumed by the delivery queue.
type Pool struct {
	synth  Synthesizer
	opts   PoolOptions
	out    chan Result
	wg     sync.WaitGroup
	logger *slog.Logger

	closeOnce sync.Once
}

func NewPool(synth Synthesizer, opts PoolOptions, logger *slog.Logger) *Pool {
	if opts.MinWords <= 0 {
		opts.MinWords = 3
	}
	if opts.AlphaRatio <= 0 {
		opts.AlphaRatio = 0.3
	}
	return &Pool{
		synth:  synth,
		opts:   opts,
		out:    make(chan Result, 64),
		logger: logger.With(slog.String("component", "synth-pool")),
	}
}

// Submit starts a synthesis task for the utterance. Every submitted
// sequence number produces exactly one Result, success or not, so strict
// delivery never stalls on a gap.
func (p *Pool) Submit(ctx context.Context, u segment.Utterance) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.out <- p.run(ctx, u)
	}()
}

func (p *Pool) run(ctx context.Context, u segment.Utterance) Result {
	cleaned, ok := segment.CleanAndValidate(u.Text, p.opts.MinWords, p.opts.AlphaRatio)
	if !ok {
		p.logger.Info("skipping utterance unfit for synthesis",
			slog.Uint64("seq", u.Seq),
			slog.Int("raw_len", len(u.Text)))
		return Result{Seq: u.Seq, Text: u.Text, Err: ErrNotSpeakable}
	}

	audio, err := p.synth.Synthesize(ctx, Request{
		Text:     cleaned,
		VoiceRef: p.opts.VoiceRef,
		Language: p.opts.Language,
	})
	if err != nil {
		p.logger.Warn("synthesis failed",
			slog.Uint64("seq", u.Seq),
			slog.String("error", err.Error()))
		return Result{Seq: u.Seq, Text: cleaned, Err: err}
	}
	return Result{Seq: u.Seq, Text: cleaned, Audio: audio}
}

// Results is the completion channel. It is closed by Close after the last
// outstanding job publishes.
func (p *Pool) Results() <-chan Result { return p.out }

// Drain blocks until every submitted job has published a Result, or ctx
// expires. A timeout leaves stragglers running; their results land in the
// channel whenever they finish and are force-flushed or abandoned by the
// delivery stage.
func (p *Pool) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the results channel once all jobs finish. Call only after
// the last Submit.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		go func() {
			p.wg.Wait()
			close(p.out)
		}()
	})
}
