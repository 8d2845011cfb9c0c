package chrome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"quotepdf/internal/domain"
	"quotepdf/internal/infra/logging"
)

// ErrGateClosed is returned by Acquire after Close.
var ErrGateClosed = errors.New("render gate closed")

// Gate caps the number of concurrent render sessions. A nil Gate admits everything.
type Gate struct {
	sem chan struct{}

	mu     sync.Mutex
	closed bool
}

// GateStats is a point-in-time view of a Gate.
type GateStats struct {
	Enabled  bool `json:"enabled"`
	Capacity int  `json:"capacity"`
	Idle     int  `json:"idle"`
	InUse    int  `json:"in_use"`
}

// NewGate returns a gate with room for capacity sessions, or nil when
// capacity is zero or negative.
func NewGate(capacity int) *Gate {
	if capacity <= 0 {
		return nil
	}
	g := &Gate{sem: make(chan struct{}, capacity)}
	for i := 0; i < capacity; i++ {
		g.sem <- struct{}{}
	}
	return g
}

// Acquire waits for a free slot.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return nil
	}
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	if closed {
		return ErrGateClosed
	}

	select {
	case <-g.sem:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (g *Gate) Release() {
	if g == nil {
		return
	}
	select {
	case g.sem <- struct{}{}:
	default:
	}
}

// Close makes further Acquire calls fail. Idempotent.
func (g *Gate) Close() {
	if g == nil {
		return
	}
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}

// Stats reports capacity and usage.
func (g *Gate) Stats() GateStats {
	if g == nil {
		return GateStats{}
	}
	g.mu.Lock()
	closed := g.closed
	g.mu.Unlock()
	capacity := cap(g.sem)
	idle := len(g.sem)
	return GateStats{
		Enabled:  !closed,
		Capacity: capacity,
		Idle:     idle,
		InUse:    capacity - idle,
	}
}

// LimitedEngine admits at most Gate's capacity of concurrent sessions from Engine.
type LimitedEngine struct {
	Engine         domain.Engine
	Gate           *Gate
	AcquireTimeout time.Duration
}

// Limit wraps engine with gate. A nil gate returns engine unchanged.
func Limit(engine domain.Engine, gate *Gate, acquireTimeout time.Duration) domain.Engine {
	if gate == nil {
		return engine
	}
	return &LimitedEngine{Engine: engine, Gate: gate, AcquireTimeout: acquireTimeout}
}

// Acquire waits for a slot, then acquires a session from the wrapped engine.
func (l *LimitedEngine) Acquire(ctx context.Context) (domain.Session, error) {
	waitCtx := ctx
	if l.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.AcquireTimeout)
		defer cancel()
	}
	if stats := l.Gate.Stats(); stats.Idle == 0 {
		logging.Debug("Waiting for render slot", "capacity", stats.Capacity, "in_use", stats.InUse)
	}
	if err := l.Gate.Acquire(waitCtx); err != nil {
		stats := l.Gate.Stats()
		logging.Warn("No render slot available",
			"error", err,
			"capacity", stats.Capacity,
			"in_use", stats.InUse,
			"acquire_timeout", l.AcquireTimeout.String(),
		)
		return nil, fmt.Errorf("wait for render slot: %w", err)
	}
	s, err := l.Engine.Acquire(ctx)
	if err != nil {
		l.Gate.Release()
		return nil, err
	}
	return &gatedSession{Session: s, gate: l.Gate}, nil
}

type gatedSession struct {
	domain.Session
	gate *Gate
	once sync.Once
}

func (s *gatedSession) Release() error {
	var err error
	s.once.Do(func() {
		err = s.Session.Release()
		s.gate.Release()
	})
	return err
}
