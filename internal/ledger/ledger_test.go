package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pepeearn/internal/models"
	"pepeearn/internal/store/storetest"
)

type recorder struct {
	mu    sync.Mutex
	calls []models.Credit
	err   error
}

func (r *recorder) pay(_ context.Context, subjectID string, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, models.Credit{UserID: subjectID, Amount: amount})
	return r.err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func setupLedger(t *testing.T, pay *recorder) (*Ledger, *Dispatcher) {
	t.Helper()
	s := storetest.New(t)
	now := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	err := s.CreateUser(context.Background(), &models.User{
		ID: "7", ReferralCode: "007ABC", LastDailyReset: now, QuotaDay: "2026-01-05", JoinDate: now,
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}

	d := NewDispatcher(8, nil)
	d.Start(context.Background(), 1, pay.pay)
	t.Cleanup(d.Close)
	return New(s, d, nil), d
}

func TestCredit(t *testing.T) {
	tests := []struct {
		name            string
		userID          string
		amount          int64
		source          models.Source
		expectedBalance int64
		expectedPayouts int
		expectedErr     error
	}{
		{
			name:            "Ad Reward",
			userID:          "7",
			amount:          250,
			source:          models.SourceAdReward,
			expectedBalance: 250,
			expectedPayouts: 1,
		},
		{
			name:            "Bonus Task",
			userID:          "7",
			amount:          300,
			source:          models.SourceBonusTask,
			expectedBalance: 300,
			expectedPayouts: 1,
		},
		{
			name:            "Referral Bonus",
			userID:          "7",
			amount:          300,
			source:          models.SourceReferralBonus,
			expectedBalance: 300,
			expectedPayouts: 0,
		},
		{
			name:            "Commission",
			userID:          "7",
			amount:          25,
			source:          models.SourceCommission,
			expectedBalance: 25,
			expectedPayouts: 0,
		},
		{
			name:        "Zero Amount",
			userID:      "7",
			amount:      0,
			source:      models.SourceAdReward,
			expectedErr: models.ErrValidation,
		},
		{
			name:        "Unknown User",
			userID:      "999",
			amount:      250,
			source:      models.SourceAdReward,
			expectedErr: models.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pay := &recorder{}
			l, d := setupLedger(t, pay)

			u, err := l.Credit(context.Background(), tt.userID, tt.amount, tt.source)
			d.Drain()

			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Expected %v, got %v", tt.expectedErr, err)
				}
				if pay.count() != 0 {
					t.Errorf("Failed credit must not pay commission")
				}
				return
			}
			if err != nil {
				t.Fatalf("Credit failed: %v", err)
			}
			if u.Balance != tt.expectedBalance || u.Stats.TotalEarned != tt.expectedBalance {
				t.Errorf("Expected balance %d, got %d (earned %d)", tt.expectedBalance, u.Balance, u.Stats.TotalEarned)
			}
			if got := pay.count(); got != tt.expectedPayouts {
				t.Errorf("Expected %d commission tasks, got %d", tt.expectedPayouts, got)
			}
		})
	}
}

func TestCommissionFailureDoesNotFailCredit(t *testing.T) {
	pay := &recorder{err: errors.New("referrer store unavailable")}
	l, d := setupLedger(t, pay)

	u, err := l.Credit(context.Background(), "7", 250, models.SourceAdReward)
	if err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	if u.Balance != 250 {
		t.Errorf("Expected balance 250, got %d", u.Balance)
	}
	d.Drain()

	select {
	case ce := <-d.Errors():
		if ce.Credit.UserID != "7" || ce.Credit.Amount != 250 {
			t.Errorf("Unexpected commission error %+v", ce)
		}
		if !errors.Is(ce, pay.err) {
			t.Errorf("Expected wrapped cause, got %v", ce.Err)
		}
	default:
		t.Error("Expected commission failure on the error channel")
	}
}

func TestDebit(t *testing.T) {
	l, _ := setupLedger(t, &recorder{})
	ctx := context.Background()

	if _, err := l.Credit(ctx, "7", 15000, models.SourceReferralBonus); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name            string
		amount          int64
		expectedBalance int64
		expectedErr     error
	}{
		{name: "Covered", amount: 10000, expectedBalance: 5000},
		{name: "Not Covered", amount: 5001, expectedErr: ErrInsufficientFunds},
		{name: "Negative", amount: -1, expectedErr: ErrInvalidAmount},
		{name: "Exact", amount: 5000, expectedBalance: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := l.Debit(ctx, "7", tt.amount)
			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Expected %v, got %v", tt.expectedErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Debit failed: %v", err)
			}
			if u.Balance != tt.expectedBalance {
				t.Errorf("Expected balance %d, got %d", tt.expectedBalance, u.Balance)
			}
		})
	}
}
