package withdrawal

import (
	"context"
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pepeearn/internal/models"
	"pepeearn/internal/monitoring"
)

const MinimumAmount int64 = 10000

var (
	ErrBelowMinimum        = fmt.Errorf("%w: minimum withdrawal amount is 10,000 PEPE", models.ErrValidation)
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", models.ErrValidation)
	ErrMissingDestination  = fmt.Errorf("%w: please enter your Binance email or UID", models.ErrValidation)
)

type Store interface {
	AppendWithdrawal(ctx context.Context, w *models.Withdrawal) error
	ListWithdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error)
}

type Debiter interface {
	Debit(ctx context.Context, userID string, amount int64) (*models.User, error)
}

type Request struct {
	UserID       string
	UserName     string
	Amount       int64
	BinanceEmail string
}

// Manager records payout requests and takes the amount off the balance.
type Manager struct {
	store  Store
	ledger Debiter
	now    func() time.Time
	newID  func() string
	logger *zap.Logger
}

func NewManager(s Store, ledger Debiter, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  s,
		ledger: ledger,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: logger,
	}
}

// Validate checks req against the balance the caller last saw.
func Validate(req Request, cachedBalance int64) error {
	if req.Amount < MinimumAmount {
		return ErrBelowMinimum
	}
	if req.Amount > cachedBalance {
		return ErrInsufficientBalance
	}
	if strings.TrimSpace(req.BinanceEmail) == "" {
		return ErrMissingDestination
	}
	return nil
}

// Submit appends a pending withdrawal and then debits the balance. The
// record is written, and visible to subscribers, before the debit. When
// the debit fails the record stays pending and is returned together with
// the error.
func (m *Manager) Submit(ctx context.Context, req Request, cachedBalance int64) (*models.Withdrawal, *models.User, error) {
	if err := Validate(req, cachedBalance); err != nil {
		monitoring.WithdrawalsTotal.WithLabelValues("rejected").Inc()
		return nil, nil, err
	}

	w := &models.Withdrawal{
		ID:           m.newID(),
		UserID:       req.UserID,
		Amount:       req.Amount,
		Method:       models.WithdrawalMethodBinance,
		BinanceEmail: strings.TrimSpace(req.BinanceEmail),
		Status:       models.WithdrawalPending,
		CreatedAt:    m.now(),
		UserName:     req.UserName,
	}

	if err := m.store.AppendWithdrawal(ctx, w); err != nil {
		monitoring.WithdrawalsTotal.WithLabelValues("failed").Inc()
		m.logger.Error("Error recording withdrawal", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, nil, err
	}

	u, err := m.ledger.Debit(ctx, req.UserID, req.Amount)
	if err != nil {
		monitoring.WithdrawalsTotal.WithLabelValues("undebited").Inc()
		m.logger.Warn("Withdrawal recorded but balance not debited",
			zap.String("withdrawal_id", w.ID),
			zap.String("user_id", req.UserID),
			zap.Int64("amount", req.Amount),
			zap.Error(err),
		)
		return w, nil, fmt.Errorf("withdrawal %s left pending without debit: %w", w.ID, err)
	}

	monitoring.WithdrawalsTotal.WithLabelValues("submitted").Inc()
	m.logger.Info("Withdrawal submitted",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", req.UserID),
		zap.Int64("amount", req.Amount),
	)
	return w, u, nil
}

// ListForUser yields the user's withdrawals newest first. Each range over
// the sequence reads the store again; a read failure is yielded once as the
// error.
func (m *Manager) ListForUser(ctx context.Context, userID string) iter.Seq2[models.Withdrawal, error] {
	return func(yield func(models.Withdrawal, error) bool) {
		list, err := m.store.ListWithdrawals(ctx, userID)
		if err != nil {
			yield(models.Withdrawal{}, err)
			return
		}

		sort.SliceStable(list, func(i, j int) bool {
			if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
				return list[i].CreatedAt.After(list[j].CreatedAt)
			}
			return list[i].ID < list[j].ID
		})

		for _, w := range list {
			if !yield(w, nil) {
				return
			}
		}
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq iter.Seq2[models.Withdrawal, error]) ([]models.Withdrawal, error) {
	out := []models.Withdrawal{}
	for w, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
