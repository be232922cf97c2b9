package delivery

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/voxalabs/voxa-core/internal/synth"
)

// Mode selects the delivery discipline for completed audio chunks.
type Mode int

const (
	// BestEffort releases chunks as soon as they arrive, regardless of
	// sequence order. Adjacent short utterances finishing out of order are
	// tolerable; end-of-stream still drains leftovers with a bounded wait.
	BestEffort Mode = iota
	// Strict holds out-of-order chunks until the delivery cursor catches
	// up, so downstream sees strictly increasing sequence numbers.
	Strict
)

// ParseMode maps config strings onto a Mode. Unknown values fall back to
// Strict, the safe default.
func ParseMode(s string) Mode {
	if s == "best_effort" {
		return BestEffort
	}
	return Strict
}

// Queue re-serializes synthesis results arriving in completion order into
// delivery order. Failure records advance the cursor past their sequence
// number instead of blocking it; they are never emitted.
//
// A Queue belongs to exactly one session.
type Queue struct {
	mode   Mode
	logger *slog.Logger

	mu      sync.Mutex
	ready   []synth.Result
	pending map[uint64]synth.Result
	cursor  uint64
	notify  chan struct{}
}

func NewQueue(mode Mode, logger *slog.Logger) *Queue {
	return &Queue{
		mode:    mode,
		logger:  logger.With(slog.String("component", "delivery-queue")),
		pending: make(map[uint64]synth.Result),
		notify:  make(chan struct{}, 1),
	}
}

// Push accepts a completed chunk or failure record from the work pool.
func (q *Queue) Push(r synth.Result) {
	q.mu.Lock()
	switch q.mode {
	case BestEffort:
		if r.Err == nil {
			q.ready = append(q.ready, r)
		}
	case Strict:
		q.pending[r.Seq] = r
		q.promote()
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// promote moves consecutive pending results at the cursor into the ready
// list, dropping failure records as it goes. Caller holds q.mu.
func (q *Queue) promote() {
	for {
		r, ok := q.pending[q.cursor]
		if !ok {
			return
		}
		delete(q.pending, q.cursor)
		q.cursor++
		if r.Err != nil {
			q.logger.Info("skipping failed chunk", slog.Uint64("seq", r.Seq))
			continue
		}
		q.ready = append(q.ready, r)
	}
}

// NextReady returns the next deliverable chunk, waiting up to timeout for
// one to arrive. The second return is false on timeout or cancellation.
func (q *Queue) NextReady(ctx context.Context, timeout time.Duration) (synth.Result, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		q.mu.Lock()
		if len(q.ready) > 0 {
			r := q.ready[0]
			q.ready = q.ready[1:]
			q.mu.Unlock()
			return r, true
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-deadline.C:
			return synth.Result{}, false
		case <-ctx.Done():
			return synth.Result{}, false
		}
	}
}

// Empty reports whether nothing is queued or held.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) == 0 && len(q.pending) == 0
}

// Size returns the number of queued and held results.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.pending)
}

// ForceFlush empties the queue at end of stream: everything ready plus, in
// strict mode, held chunks in ascending sequence order even when earlier
// sequence numbers never arrived. Used once the drain window has closed.
func (q *Queue) ForceFlush() []synth.Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.ready
	q.ready = nil

	if len(q.pending) > 0 {
		held := make([]synth.Result, 0, len(q.pending))
		for _, r := range q.pending {
			if r.Err == nil {
				held = append(held, r)
			}
		}
		sort.Slice(held, func(i, j int) bool { return held[i].Seq < held[j].Seq })
		out = append(out, held...)
		q.pending = make(map[uint64]synth.Result)
	}
	return out
}
