package bonus

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pepeearn/internal/models"
)

const Reward int64 = 300

var (
	ErrAlreadyCompleted = fmt.Errorf("%w: you have already completed the bonus task", models.ErrConflict)
	ErrNotMember        = fmt.Errorf("%w: join the channel first, then verify", models.ErrValidation)
)

// MembershipChecker reports whether a Telegram user belongs to the bonus
// channel.
type MembershipChecker interface {
	IsMember(ctx context.Context, userID string) (bool, error)
}

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	ClaimBonus(ctx context.Context, id string) (bool, error)
	ResetBonus(ctx context.Context, id string) error
}

type Crediter interface {
	Credit(ctx context.Context, userID string, amount int64, source models.Source) (*models.User, error)
}

// Verifier pays the one-time bonus for joining the official channel.
type Verifier struct {
	store   Store
	ledger  Crediter
	checker MembershipChecker
	logger  *zap.Logger
}

// NewVerifier returns a verifier. With a nil checker membership is taken on
// trust.
func NewVerifier(s Store, ledger Crediter, checker MembershipChecker, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{store: s, ledger: ledger, checker: checker, logger: logger}
}

// Verify claims the bonus flag and credits the reward. The flag is claimed
// first so two concurrent verifications pay once; if the credit then fails
// the flag is released again.
func (v *Verifier) Verify(ctx context.Context, userID string) (*models.User, error) {
	u, err := v.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.BonusCompleted {
		return nil, ErrAlreadyCompleted
	}

	if v.checker != nil {
		ok, err := v.checker.IsMember(ctx, userID)
		if err != nil {
			v.logger.Error("Error checking channel membership", zap.String("user_id", userID), zap.Error(err))
			return nil, fmt.Errorf("check membership: %w", err)
		}
		if !ok {
			return nil, ErrNotMember
		}
	}

	claimed, err := v.store.ClaimBonus(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, ErrAlreadyCompleted
	}

	u, err = v.ledger.Credit(ctx, userID, Reward, models.SourceBonusTask)
	if err != nil {
		if rerr := v.store.ResetBonus(ctx, userID); rerr != nil {
			v.logger.Error("Bonus claimed but neither credited nor released",
				zap.String("user_id", userID),
				zap.NamedError("credit_error", err),
				zap.NamedError("reset_error", rerr),
			)
		}
		return nil, err
	}

	v.logger.Info("Bonus task completed", zap.String("user_id", userID))
	return u, nil
}

// Reset clears the bonus flag so the task can be completed again.
func (v *Verifier) Reset(ctx context.Context, userID string) error {
	if err := v.store.ResetBonus(ctx, userID); err != nil {
		return err
	}
	v.logger.Info("Bonus task reset", zap.String("user_id", userID))
	return nil
}
