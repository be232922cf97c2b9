package synth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// countingSynth records the number of concurrent callers inside Synthesize.
type countingSynth struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	calls    atomic.Int32
	delay    time.Duration
	err      error

	mu    sync.Mutex
	order []string
}

func (c *countingSynth) Synthesize(ctx context.Context, req Request) (Audio, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		max := c.maxSeen.Load()
		if n <= max || c.maxSeen.CompareAndSwap(max, n) {
			break
		}
	}
	c.calls.Add(1)
	c.mu.Lock()
	c.order = append(c.order, req.Text)
	c.mu.Unlock()
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.err != nil {
		return Audio{}, c.err
	}
	return Audio{Data: []byte(req.Text)}, nil
}

func TestGateNeverRunsConcurrently(t *testing.T) {
	backend := &countingSynth{delay: 5 * time.Millisecond}
	gate := NewGate(backend, nil, newLogger())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := gate.Synthesize(context.Background(), Request{Text: "hello world"}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := backend.maxSeen.Load(); got != 1 {
		t.Fatalf("backend observed %d concurrent calls, want 1", got)
	}
	if got := gate.MaxInFlight(); got != 1 {
		t.Fatalf("gate observed %d concurrent calls, want 1", got)
	}
	if got := backend.calls.Load(); got != 8 {
		t.Fatalf("expected 8 calls, got %d", got)
	}
}

func TestGateAdmitsWaitersInArrivalOrder(t *testing.T) {
	backend := &countingSynth{}
	gate := NewGate(backend, nil, newLogger())

	// Hold the gate, queue waiters one at a time so arrival order is fixed,
	// then release and check execution order.
	if err := gate.lock.Lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}

	const n = 5
	started := make(chan int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			started <- i
			if _, err := gate.Synthesize(context.Background(), Request{Text: name(i)}); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
		<-started
		time.Sleep(10 * time.Millisecond) // let the goroutine reach the lock queue
	}

	gate.lock.Unlock()
	wg.Wait()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	for i, got := range backend.order {
		if got != name(i) {
			t.Fatalf("execution order %v does not match arrival order", backend.order)
		}
	}
}

func name(i int) string {
	return string(rune('a' + i))
}

func TestGateLockRespectsContext(t *testing.T) {
	gate := NewGate(&countingSynth{}, nil, newLogger())
	if err := gate.lock.Lock(context.Background()); err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer gate.lock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := gate.Synthesize(ctx, Request{Text: "blocked"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

type clearRecorder struct {
	clears atomic.Int32
}

func (c *clearRecorder) ClearCache(ctx context.Context) error {
	c.clears.Add(1)
	return nil
}

func TestGateClearsCacheOnResourceFault(t *testing.T) {
	backend := &countingSynth{err: errors.New("CUDA error: device-side assert triggered")}
	clearer := &clearRecorder{}
	gate := NewGate(backend, clearer, newLogger())

	_, err := gate.Synthesize(context.Background(), Request{Text: "boom"})
	if err == nil {
		t.Fatal("expected synthesis error")
	}
	if got := clearer.clears.Load(); got != 1 {
		t.Fatalf("expected exactly one cache clear, got %d", got)
	}
	if got := backend.calls.Load(); got != 1 {
		t.Fatalf("gate must not retry, got %d calls", got)
	}
}

func TestGateDoesNotClearOnOrdinaryFailure(t *testing.T) {
	backend := &countingSynth{err: errors.New("bad input text")}
	clearer := &clearRecorder{}
	gate := NewGate(backend, clearer, newLogger())

	if _, err := gate.Synthesize(context.Background(), Request{Text: "x"}); err == nil {
		t.Fatal("expected synthesis error")
	}
	if got := clearer.clears.Load(); got != 0 {
		t.Fatalf("expected no cache clear, got %d", got)
	}
}
