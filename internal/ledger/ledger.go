package ledger

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"pepeearn/internal/models"
	"pepeearn/internal/monitoring"
	"pepeearn/internal/store"
)

var (
	ErrInvalidAmount     = fmt.Errorf("%w: amount must be positive", models.ErrValidation)
	ErrInsufficientFunds = fmt.Errorf("insufficient balance: %w", models.ErrConflict)
)

type Store interface {
	Increment(ctx context.Context, id string, d models.Delta) (*models.User, error)
	DebitCovered(ctx context.Context, id string, amount int64) (*models.User, error)
}

// Ledger owns balance mutations. Every mutation is a single atomic increment
// on the subject's own record.
type Ledger struct {
	store      Store
	dispatcher *Dispatcher
	logger     *zap.Logger
}

// New returns a ledger that hands commission follow-ups to dispatcher. A nil
// dispatcher disables commissions.
func New(s Store, dispatcher *Dispatcher, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{store: s, dispatcher: dispatcher, logger: logger}
}

// Credit adds amount to the user's balance and total earnings and returns
// the record as stored after the increment. Credits from sources that pay
// commission queue a payout to the user's referrer; the payout runs later
// and its failure never fails the credit.
func (l *Ledger) Credit(ctx context.Context, userID string, amount int64, source models.Source) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	u, err := l.store.Increment(ctx, userID, models.Delta{Balance: amount, TotalEarned: amount})
	if err != nil {
		l.logger.Error("Error crediting balance",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.String("source", string(source)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("credit %d to %s: %w", amount, userID, err)
	}

	monitoring.CreditsTotal.WithLabelValues(string(source)).Inc()
	monitoring.CreditedUnitsTotal.WithLabelValues(string(source)).Add(float64(amount))
	l.logger.Debug("Balance credited",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.String("source", string(source)),
		zap.Int64("balance", u.Balance),
	)

	if source.PaysCommission() && l.dispatcher != nil {
		l.dispatcher.Enqueue(models.Credit{UserID: userID, Amount: amount, Source: source})
	}
	return u, nil
}

// Debit removes amount from the balance. The store refuses the debit when
// the stored balance does not cover it.
func (l *Ledger) Debit(ctx context.Context, userID string, amount int64) (*models.User, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	u, err := l.store.DebitCovered(ctx, userID, amount)
	if err != nil {
		if errors.Is(err, store.ErrPrecondition) {
			return nil, ErrInsufficientFunds
		}
		l.logger.Error("Error debiting balance",
			zap.String("user_id", userID),
			zap.Int64("amount", amount),
			zap.Error(err),
		)
		return nil, fmt.Errorf("debit %d from %s: %w", amount, userID, err)
	}
	return u, nil
}
