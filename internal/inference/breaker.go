package inference

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the operating mode of a Breaker.
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls with ErrCircuitOpen until the reset timeout elapses.
	BreakerOpen
	// BreakerHalfOpen lets a bounded number of probe calls through.
	BreakerHalfOpen
)

// String returns the state name.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a Breaker. Zero fields take defaults.
type BreakerConfig struct {
	// Name labels log lines.
	Name string
	// MaxFailures is the consecutive failure count that opens the breaker. Default: 5.
	MaxFailures int
	// ResetTimeout is how long the breaker stays open. Default: 30s.
	ResetTimeout time.Duration
	// HalfOpenMax is the number of successful probes that close the breaker. Default: 1.
	HalfOpenMax int
}

// Breaker guards a Service with the closed/open/half-open pattern so a failing
// model does not stall every NPC that asks it for a decision.
//
// Caller cancellations (context.Canceled) are not counted as model failures.
type Breaker struct {
	next   Service
	cfg    BreakerConfig
	logger *zap.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           BreakerState
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
	halfOpenOK      int
}

// NewBreaker wraps next.
//
// Precondition: next and logger must be non-nil.
func NewBreaker(next Service, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	return &Breaker{next: next, cfg: cfg, logger: logger, now: time.Now}
}

// WithClock replaces the breaker's time source. Intended for tests.
func (b *Breaker) WithClock(now func() time.Time) *Breaker {
	b.now = now
	return b
}

// State reports the current state. An open breaker whose reset timeout has
// elapsed reports half-open; the transition itself happens on the next call.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return BreakerHalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.consecutiveFail = 0
	b.halfOpenCalls = 0
	b.halfOpenOK = 0
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return false, ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.halfOpenCalls = 0
		b.halfOpenOK = 0
		b.logger.Info("inference breaker half-open", zap.String("breaker", b.cfg.Name))
	case BreakerHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMax {
			return false, ErrCircuitOpen
		}
	}
	if b.state == BreakerHalfOpen {
		b.halfOpenCalls++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	if err != nil && errorsIsCanceled(err) {
		if probe {
			b.mu.Lock()
			b.halfOpenCalls--
			b.mu.Unlock()
		}
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		if probe {
			b.state = BreakerOpen
			b.openedAt = b.now()
			b.logger.Warn("inference breaker re-opened", zap.String("breaker", b.cfg.Name), zap.Error(err))
			return
		}
		b.consecutiveFail++
		if b.state == BreakerClosed && b.consecutiveFail >= b.cfg.MaxFailures {
			b.state = BreakerOpen
			b.openedAt = b.now()
			b.logger.Warn("inference breaker opened",
				zap.String("breaker", b.cfg.Name),
				zap.Int("consecutive_failures", b.consecutiveFail),
				zap.Error(err),
			)
		}
		return
	}
	if probe {
		b.halfOpenOK++
		if b.halfOpenOK >= b.cfg.HalfOpenMax {
			b.state = BreakerClosed
			b.consecutiveFail = 0
			b.logger.Info("inference breaker closed", zap.String("breaker", b.cfg.Name))
		}
		return
	}
	b.consecutiveFail = 0
}

// GenerateDialogue implements Service.
func (b *Breaker) GenerateDialogue(ctx context.Context, req DialogueRequest) (DialogueResponse, error) {
	probe, err := b.admit()
	if err != nil {
		return DialogueResponse{}, err
	}
	resp, err := b.next.GenerateDialogue(ctx, req)
	b.record(probe, err)
	return resp, err
}

// DecideBehavior implements Service.
func (b *Breaker) DecideBehavior(ctx context.Context, req BehaviorRequest) (BehaviorResponse, error) {
	probe, err := b.admit()
	if err != nil {
		return BehaviorResponse{}, err
	}
	resp, err := b.next.DecideBehavior(ctx, req)
	b.record(probe, err)
	return resp, err
}
