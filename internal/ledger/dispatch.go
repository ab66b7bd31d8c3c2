package ledger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"pepeearn/internal/models"
	"pepeearn/internal/monitoring"
)

// CommissionFunc pays the referrer of subjectID its share of amount.
type CommissionFunc func(ctx context.Context, subjectID string, amount int64) error

// CommissionError reports a payout that failed after its credit succeeded.
type CommissionError struct {
	Credit models.Credit
	Err    error
}

func (e CommissionError) Error() string {
	return "commission for " + e.Credit.UserID + ": " + e.Err.Error()
}

func (e CommissionError) Unwrap() error { return e.Err }

// Dispatcher runs commission payouts off the credit path on a bounded queue.
type Dispatcher struct {
	tasks  chan models.Credit
	errs   chan CommissionError
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	workers sync.WaitGroup
}

func NewDispatcher(queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		tasks:  make(chan models.Credit, queueSize),
		errs:   make(chan CommissionError, queueSize),
		logger: logger,
	}
}

// Start launches workers that pay queued commissions with pay.
func (d *Dispatcher) Start(ctx context.Context, workers int, pay CommissionFunc) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		d.workers.Add(1)
		go func() {
			defer d.workers.Done()
			for c := range d.tasks {
				d.run(ctx, pay, c)
			}
		}()
	}
}

func (d *Dispatcher) run(ctx context.Context, pay CommissionFunc, c models.Credit) {
	defer d.pending.Done()

	if err := pay(ctx, c.UserID, c.Amount); err != nil {
		monitoring.CommissionFailures.Inc()
		d.logger.Warn("Commission payout failed",
			zap.String("user_id", c.UserID),
			zap.Int64("amount", c.Amount),
			zap.String("source", string(c.Source)),
			zap.Error(err),
		)
		select {
		case d.errs <- CommissionError{Credit: c, Err: err}:
		default:
		}
	}
}

// Enqueue queues a commission without blocking. It reports false when the
// task was dropped because the queue is full or closed.
func (d *Dispatcher) Enqueue(c models.Credit) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		monitoring.CommissionDropped.Inc()
		d.logger.Warn("Commission dropped, dispatcher closed", zap.String("user_id", c.UserID))
		return false
	}

	d.pending.Add(1)
	select {
	case d.tasks <- c:
		return true
	default:
		d.pending.Done()
		monitoring.CommissionDropped.Inc()
		d.logger.Warn("Commission dropped, queue full",
			zap.String("user_id", c.UserID),
			zap.Int64("amount", c.Amount),
		)
		return false
	}
}

// Errors exposes failed payouts. Failures are dropped when nobody drains
// the channel.
func (d *Dispatcher) Errors() <-chan CommissionError {
	return d.errs
}

// Drain waits until every queued commission has been attempted.
func (d *Dispatcher) Drain() {
	d.pending.Wait()
}

// Close stops accepting commissions and waits for the queued ones.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()

	d.workers.Wait()
}
