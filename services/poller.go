package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"scan-order/models"

	"go.uber.org/zap"
)

// StatusReader is the read side the poller depends on.
type StatusReader interface {
	GetStatus(ctx context.Context, orderID string) (models.OrderStatus, error)
}

type PollOutcome int

const (
	PollTerminal  PollOutcome = iota // a terminal status was observed
	PollExhausted                    // attempts ran out; the order is still in progress
	PollCancelled                    // the watch was stopped by the caller
	PollFailed                       // the order does not exist
)

func (o PollOutcome) String() string {
	switch o {
	case PollTerminal:
		return "terminal"
	case PollExhausted:
		return "exhausted"
	case PollCancelled:
		return "cancelled"
	case PollFailed:
		return "failed"
	}
	return "unknown"
}

// PollResult is the last status seen and why polling stopped.
type PollResult struct {
	Status   models.OrderStatus
	Attempts int
	Outcome  PollOutcome
	Err      error
}

type PollerConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// BackoffDelay returns min(base * 2^(attempt-1), max) for attempt >= 1.
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Poller watches an order's status with capped exponential backoff and a bounded number of reads.
type Poller struct {
	reader StatusReader
	cfg    PollerConfig
	log    *zap.Logger
	// wait blocks for d or until ctx ends.
	wait func(ctx context.Context, d time.Duration) error
}

func NewPoller(reader StatusReader, cfg PollerConfig, log *zap.Logger) *Poller {
	return &Poller{reader: reader, cfg: cfg, log: log.Named("poller"), wait: sleepContext}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch polls until a terminal status, the attempt budget runs out, or ctx ends. The first read is
// immediate and each next read is scheduled only after the previous one returned. onChange is called
// for the first status seen and for every later change; repeated or regressing statuses are ignored.
func (p *Poller) Watch(ctx context.Context, orderID string, onChange func(models.OrderStatus)) PollResult {
	var res PollResult
	log := p.log.With(zap.String("order_id", orderID))
	for res.Attempts < p.cfg.MaxAttempts {
		if res.Attempts > 0 {
			if err := p.wait(ctx, BackoffDelay(res.Attempts, p.cfg.BaseDelay, p.cfg.MaxDelay)); err != nil {
				res.Outcome = PollCancelled
				return res
			}
		}
		if ctx.Err() != nil {
			res.Outcome = PollCancelled
			return res
		}
		res.Attempts++
		status, err := p.reader.GetStatus(ctx, orderID)
		if ctx.Err() != nil {
			res.Outcome = PollCancelled
			return res
		}
		if errors.Is(err, ErrOrderNotFound) {
			res.Outcome = PollFailed
			res.Err = err
			return res
		}
		if err != nil {
			log.Debug("status read failed", zap.Int("attempt", res.Attempts), zap.Error(err))
			res.Err = err
			continue
		}
		res.Err = nil
		if status != res.Status && !isRegression(res.Status, status) {
			res.Status = status
			if onChange != nil {
				onChange(status)
			}
		}
		if res.Status.IsTerminal() {
			res.Outcome = PollTerminal
			return res
		}
	}
	res.Outcome = PollExhausted
	log.Debug("poll budget exhausted", zap.Int("attempts", res.Attempts), zap.String("status", string(res.Status)))
	return res
}

// isRegression reports whether next would move the observed status backwards.
func isRegression(prev, next models.OrderStatus) bool {
	switch {
	case prev == "":
		return !next.Valid()
	case prev.IsTerminal():
		return true
	case next == models.OrderStatusCancelled:
		return false
	}
	return next.Rank() < prev.Rank()
}

// PollHandle controls a background Watch.
type PollHandle struct {
	cancel  context.CancelFunc
	done    chan PollResult
	mu      sync.Mutex
	stopped bool
}

// Start runs Watch in a goroutine. After Stop returns, onChange is never called again.
func (p *Poller) Start(ctx context.Context, orderID string, onChange func(models.OrderStatus)) *PollHandle {
	ctx, cancel := context.WithCancel(ctx)
	h := &PollHandle{cancel: cancel, done: make(chan PollResult, 1)}
	go func() {
		res := p.Watch(ctx, orderID, func(s models.OrderStatus) {
			if onChange != nil {
				h.ifActive(func() { onChange(s) })
			}
		})
		h.mu.Lock()
		if h.stopped {
			res.Outcome = PollCancelled
		}
		h.mu.Unlock()
		cancel()
		h.done <- res
		close(h.done)
	}()
	return h
}

// Stop cancels the watch. It is safe to call more than once and from any goroutine
// other than the onChange callback itself.
func (h *PollHandle) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cancel()
}

// Done yields the result once the watch has finished.
func (h *PollHandle) Done() <-chan PollResult {
	return h.done
}

// ifActive runs fn unless Stop was called. Stop waits for a running fn to return.
func (h *PollHandle) ifActive(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.stopped {
		fn()
	}
}
