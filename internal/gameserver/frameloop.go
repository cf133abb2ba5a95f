package gameserver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrLoopStopped is returned by Submit once the loop is not running.
var ErrLoopStopped = errors.New("frame loop stopped")

// TickFunc runs one frame with the time elapsed since the previous one.
type TickFunc func(ctx context.Context, dt time.Duration)

type command struct {
	fn   func(ctx context.Context) error
	done chan error
}

// FrameLoop owns the single frame goroutine. Frames run every interval and
// host commands submitted from other goroutines run between frames, so the
// simulation never sees concurrent callers.
type FrameLoop struct {
	interval time.Duration
	tick     TickFunc
	logger   *zap.Logger
	now      func() time.Time

	cmds chan command

	mu      sync.Mutex
	running bool
	stopped chan struct{}
}

// NewFrameLoop creates a stopped loop.
//
// Precondition: interval must be > 0; tick must be non-nil.
func NewFrameLoop(interval time.Duration, tick TickFunc, logger *zap.Logger) *FrameLoop {
	if interval <= 0 {
		panic("gameserver.NewFrameLoop: interval must be > 0")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameLoop{
		interval: interval,
		tick:     tick,
		logger:   logger.Named("frameloop"),
		now:      time.Now,
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
	}
}

// Interval returns the frame period.
func (l *FrameLoop) Interval() time.Duration { return l.interval }

// Run drives frames until ctx is cancelled. It may be called once.
//
// Postcondition: Returns ctx.Err(); pending and later Submit calls fail with
// ErrLoopStopped.
func (l *FrameLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return fmt.Errorf("frame loop already running")
	}
	l.running = true
	l.mu.Unlock()
	defer close(l.stopped)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	l.logger.Info("frame loop started", zap.Duration("interval", l.interval))
	last := l.now()
	var frames uint64
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("frame loop stopped", zap.Uint64("frames", frames))
			return ctx.Err()
		case cmd := <-l.cmds:
			cmd.done <- l.exec(ctx, cmd.fn)
		case <-ticker.C:
			now := l.now()
			dt := now.Sub(last)
			last = now
			l.tick(ctx, dt)
			frames++
		}
	}
}

func (l *FrameLoop) exec(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("host command panicked", zap.Any("panic", r))
			err = fmt.Errorf("host command panicked: %v", r)
		}
	}()
	return fn(ctx)
}

// Submit runs fn on the frame goroutine between frames and returns its error.
//
// Postcondition: Returns ctx.Err() if ctx ends before fn is scheduled, or
// ErrLoopStopped once Run has returned. Once scheduled, fn runs to
// completion and its result is returned.
func (l *FrameLoop) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-cmd.done
}
