package synth

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Gate serializes every synthesis call process-wide: the synthesis device
// cannot run two jobs at once, so at most one caller is ever inside the
// wrapped Synthesizer. Waiters are admitted in arrival order.
//
// One Gate instance exists per process regardless of session count.
type Gate struct {
	synth  Synthesizer
	clear  CacheClearer
	lock   fifoMutex
	logger *slog.Logger

	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

// NewGate wraps synth in the process-wide exclusion gate. clear may be nil
// when the backend holds no device cache.
func NewGate(synth Synthesizer, clear CacheClearer, logger *slog.Logger) *Gate {
	return &Gate{
		synth:  synth,
		clear:  clear,
		logger: logger.With(slog.String("component", "synth-gate")),
	}
}

// Synthesize acquires the gate, runs the wrapped backend, and releases the
// gate. On a resource fault it clears the device cache once before
// surfacing the error; it never retries — skipping a degraded utterance is
// the caller's documented contract.
func (g *Gate) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if err := g.lock.Lock(ctx); err != nil {
		return Audio{}, err
	}
	defer g.lock.Unlock()

	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		max := g.maxSeen.Load()
		if n <= max || g.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}

	audio, err := g.synth.Synthesize(ctx, req)
	if err != nil && IsResourceFault(err) {
		g.logger.Error("resource fault from synthesis backend, clearing device cache",
			slog.String("error", err.Error()))
		if g.clear != nil {
			if cerr := g.clear.ClearCache(ctx); cerr != nil {
				g.logger.Error("device cache clear failed", slog.String("error", cerr.Error()))
			}
		}
	}
	return audio, err
}

// InFlight returns the number of calls currently inside the backend.
func (g *Gate) InFlight() int { return int(g.inFlight.Load()) }

// MaxInFlight returns the highest concurrency ever observed inside the
// backend. It must never exceed 1.
func (g *Gate) MaxInFlight() int { return int(g.maxSeen.Load()) }

// fifoMutex is a context-aware mutual exclusion lock that grants the lock
// to waiters in strict arrival order. sync.Mutex only approximates FIFO
// under contention; synthesis order must match submission order.
type fifoMutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

func (m *fifoMutex) Lock(ctx context.Context) error {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		for i, w := range m.waiters {
			if w == ch {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				m.mu.Unlock()
				return ctx.Err()
			}
		}
		// The grant raced with cancellation; pass the lock on.
		m.unlockLocked()
		m.mu.Unlock()
		return ctx.Err()
	}
}

func (m *fifoMutex) Unlock() {
	m.mu.Lock()
	m.unlockLocked()
	m.mu.Unlock()
}

func (m *fifoMutex) unlockLocked() {
	if len(m.waiters) > 0 {
		ch := m.waiters[0]
		m.waiters = m.waiters[1:]
		close(ch)
		return
	}
	m.locked = false
}
