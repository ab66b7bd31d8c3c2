package store

import (
	"context"
	"fmt"
	"time"

	"pepeearn/internal/models"
)

var (
	ErrNotFound = fmt.Errorf("record %w", models.ErrNotFound)
	ErrExists   = fmt.Errorf("record already exists: %w", models.ErrConflict)
	// ErrPrecondition is returned by conditional writes whose guard no longer
	// holds on the stored record.
	ErrPrecondition = fmt.Errorf("precondition failed: %w", models.ErrConflict)
)

// NotifyChannel is the Postgres channel carrying change topics between
// server processes.
const NotifyChannel = "pepe_changes"

func UserTopic(userID string) string        { return "user:" + userID }
func WithdrawalsTopic(userID string) string { return "withdrawals:" + userID }

// Store is the document store contract the reward economy runs on: point
// reads, whole-record creation, atomic increments, equality queries,
// conditional writes and change subscriptions.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateProfile(ctx context.Context, id, username, firstName string) error
	Increment(ctx context.Context, id string, d models.Delta) (*models.User, error)
	FindByReferralCode(ctx context.Context, code string) ([]string, error)

	ClaimReferrer(ctx context.Context, id, referrerID string) (bool, error)
	ResetQuota(ctx context.Context, id, day string, now time.Time) (bool, error)
	ClaimAdSlot(ctx context.Context, id, day string, now time.Time, limit int) (*models.User, error)
	ClaimBonus(ctx context.Context, id string) (bool, error)
	ResetBonus(ctx context.Context, id string) error
	DebitCovered(ctx context.Context, id string, amount int64) (*models.User, error)

	AppendWithdrawal(ctx context.Context, w *models.Withdrawal) error
	ListWithdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error)

	Subscribe(topic string, fn func(topic string)) (cancel func())
}
