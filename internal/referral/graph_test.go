package referral

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pepeearn/internal/ledger"
	"pepeearn/internal/models"
	"pepeearn/internal/store"
	"pepeearn/internal/store/storetest"
)

var joined = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

type fixture struct {
	store      *store.SQLStore
	graph      *Graph
	ledger     *ledger.Ledger
	dispatcher *ledger.Dispatcher
}

func setup(t *testing.T) *fixture {
	t.Helper()
	s := storetest.New(t)
	d := ledger.NewDispatcher(16, nil)
	l := ledger.New(s, d, nil)
	g := NewGraph(s, l, nil)
	d.Start(context.Background(), 1, g.PayCommission)
	t.Cleanup(d.Close)
	return &fixture{store: s, graph: g, ledger: l, dispatcher: d}
}

func (f *fixture) addUser(t *testing.T, id, code string, offset time.Duration) {
	t.Helper()
	at := joined.Add(offset)
	err := f.store.CreateUser(context.Background(), &models.User{
		ID: id, ReferralCode: code, LastDailyReset: at, QuotaDay: models.DayKey(at, time.UTC), JoinDate: at,
	})
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", id, err)
	}
}

func (f *fixture) user(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := f.store.GetUser(context.Background(), id)
	if err != nil {
		t.Fatalf("Failed to load user %s: %v", id, err)
	}
	return u
}

func TestAttribute(t *testing.T) {
	tests := []struct {
		name        string
		subject     string
		code        string
		prepare     func(t *testing.T, f *fixture)
		expectedErr error

		expectedReferrer string
	}{
		{name: "Valid Code", subject: "B", code: "ABC123", expectedReferrer: "A"},
		{name: "Lower Case Code", subject: "B", code: " abc123 ", expectedReferrer: "A"},
		{name: "Empty Code", subject: "B", code: "  ", expectedErr: ErrEmptyCode},
		{name: "Own Code", subject: "B", code: "BBB222", expectedErr: ErrSelfReferral},
		{name: "Unknown Code", subject: "B", code: "ZZZ999", expectedErr: ErrInvalidCode},
		{
			name:    "Already Referred",
			subject: "B",
			code:    "ABC123",
			prepare: func(t *testing.T, f *fixture) {
				f.addUser(t, "C", "CCC333", time.Hour)
				if _, err := f.graph.Attribute(context.Background(), "B", "CCC333"); err != nil {
					t.Fatal(err)
				}
			},
			expectedErr: ErrAlreadyReferred,
		},
		{
			name:    "Shared Code Resolves To Oldest Holder",
			subject: "B",
			code:    "SHARED",
			prepare: func(t *testing.T, f *fixture) {
				f.addUser(t, "D", "SHARED", 2*time.Hour)
				f.addUser(t, "E", "SHARED", -time.Hour)
			},
			expectedReferrer: "E",
		},
		{name: "Unknown Subject", subject: "nobody", code: "ABC123", expectedErr: models.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			f.addUser(t, "A", "ABC123", 0)
			f.addUser(t, "B", "BBB222", time.Minute)
			if tt.prepare != nil {
				tt.prepare(t, f)
			}

			before := f.user(t, "A").Stats.TotalReferrals
			referrer, err := f.graph.Attribute(context.Background(), tt.subject, tt.code)
			f.dispatcher.Drain()

			if tt.expectedErr != nil {
				if !errors.Is(err, tt.expectedErr) {
					t.Fatalf("Expected %v, got %v", tt.expectedErr, err)
				}
				if got := f.user(t, "A").Stats.TotalReferrals; got != before {
					t.Errorf("Failed attribution changed referral count %d -> %d", before, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Attribute failed: %v", err)
			}
			if referrer != tt.expectedReferrer {
				t.Errorf("Expected referrer %s, got %s", tt.expectedReferrer, referrer)
			}
			b := f.user(t, "B")
			if b.ReferredBy != tt.expectedReferrer || b.Balance != SignupBonus {
				t.Errorf("Expected B referred by %s with balance %d, got %q %d",
					tt.expectedReferrer, SignupBonus, b.ReferredBy, b.Balance)
			}
			if got := f.user(t, tt.expectedReferrer).Stats.TotalReferrals; got != 1 {
				t.Errorf("Expected referrer to have 1 referral, got %d", got)
			}
		})
	}
}

func TestAttributeSecondCallFails(t *testing.T) {
	f := setup(t)
	f.addUser(t, "A", "ABC123", 0)
	f.addUser(t, "B", "BBB222", time.Minute)
	ctx := context.Background()

	referrer, err := f.graph.Attribute(ctx, "B", "ABC123")
	if err != nil || referrer != "A" {
		t.Fatalf("First attribute: referrer=%q err=%v", referrer, err)
	}
	if _, err := f.graph.Attribute(ctx, "B", "ABC123"); !errors.Is(err, ErrAlreadyReferred) {
		t.Fatalf("Expected ErrAlreadyReferred, got %v", err)
	}

	b := f.user(t, "B")
	if b.ReferredBy != "A" || b.Balance != SignupBonus {
		t.Errorf("Expected B referred by A with %d, got %q %d", SignupBonus, b.ReferredBy, b.Balance)
	}
	if got := f.user(t, "A").Stats.TotalReferrals; got != 1 {
		t.Errorf("Expected 1 referral, got %d", got)
	}
}

func TestAttributeConcurrentCodesCountOnce(t *testing.T) {
	f := setup(t)
	f.addUser(t, "A", "ABC123", 0)
	f.addUser(t, "C", "CCC333", time.Minute)
	f.addUser(t, "B", "BBB222", 2*time.Minute)

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for _, code := range []string{"ABC123", "CCC333"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.graph.Attribute(context.Background(), "B", code)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrAlreadyReferred):
				rejected.Add(1)
			default:
				t.Errorf("Unexpected error for %s: %v", code, err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || rejected.Load() != 1 {
		t.Fatalf("Expected one attribution and one ErrAlreadyReferred, got %d/%d", ok.Load(), rejected.Load())
	}
	b := f.user(t, "B")
	if b.Balance != SignupBonus {
		t.Errorf("Expected B balance %d, got %d", SignupBonus, b.Balance)
	}
	total := f.user(t, "A").Stats.TotalReferrals + f.user(t, "C").Stats.TotalReferrals
	if total != 1 {
		t.Errorf("Expected 1 referral counted, got %d", total)
	}
	if got := f.user(t, b.ReferredBy).Stats.TotalReferrals; got != 1 {
		t.Errorf("Expected the winning referrer %s to count it, got %d", b.ReferredBy, got)
	}
}

func TestResolveCodeFirstMatchWins(t *testing.T) {
	f := setup(t)
	f.addUser(t, "late", "DUP001", 3*time.Hour)
	f.addUser(t, "early", "DUP001", time.Hour)
	f.addUser(t, "middle", "DUP001", 2*time.Hour)

	for i := 0; i < 10; i++ {
		id, err := f.graph.ResolveCode(context.Background(), "DUP001")
		if err != nil {
			t.Fatalf("ResolveCode failed: %v", err)
		}
		if id != "early" {
			t.Fatalf("Expected oldest holder 'early', got %q", id)
		}
	}
}

func TestCommission(t *testing.T) {
	tests := []struct {
		amount   int64
		expected int64
	}{
		{amount: 250, expected: 25},
		{amount: 300, expected: 30},
		{amount: 19, expected: 1},
		{amount: 9, expected: 0},
		{amount: 0, expected: 0},
		{amount: -50, expected: 0},
	}
	for _, tt := range tests {
		if got := Commission(tt.amount); got != tt.expected {
			t.Errorf("Commission(%d): expected %d, got %d", tt.amount, tt.expected, got)
		}
	}
}

func TestPayCommission(t *testing.T) {
	f := setup(t)
	f.addUser(t, "A", "ABC123", 0)
	f.addUser(t, "B", "BBB222", time.Minute)
	ctx := context.Background()

	// no referrer: no-op
	if err := f.graph.PayCommission(ctx, "B", 250); err != nil {
		t.Fatalf("PayCommission failed: %v", err)
	}
	if a := f.user(t, "A"); a.Balance != 0 {
		t.Fatalf("Unexpected payout without referrer: %d", a.Balance)
	}

	if _, err := f.store.ClaimReferrer(ctx, "B", "A"); err != nil {
		t.Fatal(err)
	}
	for _, amount := range []int64{250, 9, 300} {
		if err := f.graph.PayCommission(ctx, "B", amount); err != nil {
			t.Fatalf("PayCommission(%d) failed: %v", amount, err)
		}
	}

	a := f.user(t, "A")
	if a.Balance != 55 || a.Stats.ReferralEarnings != 55 || a.Stats.TotalEarned != 55 {
		t.Errorf("Expected 55 across balance/referralEarnings/totalEarned, got %d/%d/%d",
			a.Balance, a.Stats.ReferralEarnings, a.Stats.TotalEarned)
	}
}

func TestReferralScenario(t *testing.T) {
	f := setup(t)
	f.addUser(t, "A", "ABC123", 0)
	f.addUser(t, "B", "BBB222", time.Minute)
	ctx := context.Background()

	if _, err := f.graph.Attribute(ctx, "B", "ABC123"); err != nil {
		t.Fatalf("Attribute failed: %v", err)
	}
	f.dispatcher.Drain()

	b := f.user(t, "B")
	a := f.user(t, "A")
	if b.ReferredBy != "A" || b.Balance != 300 || a.Stats.TotalReferrals != 1 {
		t.Fatalf("After attribution: B=%+v A.stats=%+v", b, a.Stats)
	}
	if a.Balance != 0 {
		t.Fatalf("Referral bonus must not pay commission, A balance %d", a.Balance)
	}

	if _, err := f.ledger.Credit(ctx, "B", 250, models.SourceAdReward); err != nil {
		t.Fatalf("Credit failed: %v", err)
	}
	f.dispatcher.Drain()

	b = f.user(t, "B")
	a = f.user(t, "A")
	if b.Balance != 550 {
		t.Errorf("Expected B balance 550, got %d", b.Balance)
	}
	if a.Balance != 25 || a.Stats.ReferralEarnings != 25 {
		t.Errorf("Expected A balance/referralEarnings 25/25, got %d/%d", a.Balance, a.Stats.ReferralEarnings)
	}
}
