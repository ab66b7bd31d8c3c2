package referral

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pepeearn/internal/models"
	"pepeearn/internal/monitoring"
)

const (
	// SignupBonus is credited to a user when their referral code is applied.
	SignupBonus int64 = 300
	// CommissionPercent of every commission-paying credit goes to the referrer.
	CommissionPercent int64 = 10
)

var (
	ErrEmptyCode       = fmt.Errorf("%w: referral code is empty", models.ErrValidation)
	ErrSelfReferral    = fmt.Errorf("%w: cannot use your own referral code", models.ErrValidation)
	ErrAlreadyReferred = fmt.Errorf("%w: a referral code was already applied", models.ErrValidation)
	ErrInvalidCode     = fmt.Errorf("invalid referral code: %w", models.ErrNotFound)
)

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) ([]string, error)
	ClaimReferrer(ctx context.Context, id, referrerID string) (bool, error)
	Increment(ctx context.Context, id string, d models.Delta) (*models.User, error)
}

type Crediter interface {
	Credit(ctx context.Context, userID string, amount int64, source models.Source) (*models.User, error)
}

// Graph records who referred whom and pays referrers their commission.
type Graph struct {
	store  Store
	ledger Crediter
	logger *zap.Logger
}

func NewGraph(s Store, ledger Crediter, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{store: s, ledger: ledger, logger: logger}
}

// Commission is the referrer's share of amount, rounded down.
func Commission(amount int64) int64 {
	if amount <= 0 {
		return 0
	}
	return amount * CommissionPercent / 100
}

// ResolveCode returns the id of the user holding code. When several users
// share a code the oldest account wins.
func (g *Graph) ResolveCode(ctx context.Context, code string) (string, error) {
	ids, err := g.store.FindByReferralCode(ctx, code)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", ErrInvalidCode
	}
	if len(ids) > 1 {
		g.logger.Warn("Referral code shared by several users",
			zap.String("code", code),
			zap.Strings("user_ids", ids),
			zap.String("resolved", ids[0]),
		)
	}
	return ids[0], nil
}

// Attribute applies code to subjectID: the subject records its referrer once,
// the referrer's referral count goes up by one and the subject receives the
// signup bonus. It returns the referrer id.
func (g *Graph) Attribute(ctx context.Context, subjectID, code string) (string, error) {
	code = NormalizeCode(code)
	if code == "" {
		return "", ErrEmptyCode
	}

	subject, err := g.store.GetUser(ctx, subjectID)
	if err != nil {
		return "", err
	}
	if code == subject.ReferralCode {
		return "", ErrSelfReferral
	}
	if subject.ReferredBy != "" {
		return "", ErrAlreadyReferred
	}

	referrerID, err := g.ResolveCode(ctx, code)
	if err != nil {
		return "", err
	}
	if referrerID == subjectID {
		return "", ErrSelfReferral
	}

	claimed, err := g.store.ClaimReferrer(ctx, subjectID, referrerID)
	if err != nil {
		return "", err
	}
	if !claimed {
		// another session attributed this user between the read and the write
		return "", ErrAlreadyReferred
	}

	if _, err := g.store.Increment(ctx, referrerID, models.Delta{TotalReferrals: 1}); err != nil {
		g.logger.Error("Error counting referral",
			zap.String("user_id", subjectID),
			zap.String("referrer_id", referrerID),
			zap.Error(err),
		)
		return referrerID, fmt.Errorf("count referral for %s: %w", referrerID, err)
	}

	if _, err := g.ledger.Credit(ctx, subjectID, SignupBonus, models.SourceReferralBonus); err != nil {
		return referrerID, err
	}

	g.logger.Info("Referral applied",
		zap.String("user_id", subjectID),
		zap.String("referrer_id", referrerID),
		zap.String("code", code),
	)
	return referrerID, nil
}

// PayCommission credits the referrer of subjectID with its share of amount.
// Users without a referrer and shares that round down to zero are no-ops.
func (g *Graph) PayCommission(ctx context.Context, subjectID string, amount int64) error {
	subject, err := g.store.GetUser(ctx, subjectID)
	if err != nil {
		return err
	}
	if subject.ReferredBy == "" {
		return nil
	}

	commission := Commission(amount)
	if commission == 0 {
		return nil
	}

	_, err = g.store.Increment(ctx, subject.ReferredBy, models.Delta{
		Balance:          commission,
		TotalEarned:      commission,
		ReferralEarnings: commission,
	})
	if err != nil {
		return fmt.Errorf("pay commission to %s: %w", subject.ReferredBy, err)
	}

	monitoring.CommissionPayouts.Inc()
	monitoring.CreditsTotal.WithLabelValues(string(models.SourceCommission)).Inc()
	monitoring.CreditedUnitsTotal.WithLabelValues(string(models.SourceCommission)).Add(float64(commission))
	g.logger.Debug("Commission paid",
		zap.String("user_id", subjectID),
		zap.String("referrer_id", subject.ReferredBy),
		zap.Int64("commission", commission),
	)
	return nil
}
