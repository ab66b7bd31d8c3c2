package quota

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

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func setupTracker(t *testing.T, start time.Time) (*Tracker, *store.SQLStore, *clock) {
	t.Helper()
	s := storetest.New(t)
	c := &clock{t: start}
	err := s.CreateUser(context.Background(), &models.User{
		ID: "u1", ReferralCode: "001ABC", LastDailyReset: start,
		QuotaDay: models.DayKey(start, time.UTC), JoinDate: start,
	})
	if err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	tr := NewTracker(s, ledger.New(s, nil, nil), time.UTC, nil).WithClock(c.now)
	return tr, s, c
}

func TestRecordAdWatchedDailyLimit(t *testing.T) {
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tr, s, c := setupTracker(t, start)
	ctx := context.Background()

	for i := 1; i <= DailyLimit; i++ {
		u, err := tr.RecordAdWatched(ctx, "u1")
		if err != nil {
			t.Fatalf("Ad %d failed: %v", i, err)
		}
		if u.DailyAdCount != i || u.Balance != int64(i)*AdReward {
			t.Fatalf("Ad %d: count %d balance %d", i, u.DailyAdCount, u.Balance)
		}
	}

	if _, err := tr.RecordAdWatched(ctx, "u1"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("Expected ErrQuotaExceeded on ad 41, got %v", err)
	}

	u, _ := s.GetUser(ctx, "u1")
	if tr.State(u) != Exhausted || tr.Remaining(u) != 0 {
		t.Errorf("Expected exhausted quota, got %s with %d remaining", tr.State(u), tr.Remaining(u))
	}
	if u.Balance != DailyLimit*AdReward || u.Stats.TotalAdsWatched != DailyLimit {
		t.Errorf("Rejected ad must not be credited: balance %d watched %d", u.Balance, u.Stats.TotalAdsWatched)
	}

	// one minute past midnight
	c.t = time.Date(2026, 4, 2, 0, 1, 0, 0, time.UTC)
	if tr.State(u) != Available {
		t.Errorf("Expected available on a later day")
	}
	u, err := tr.RecordAdWatched(ctx, "u1")
	if err != nil {
		t.Fatalf("First ad of next day failed: %v", err)
	}
	if u.DailyAdCount != 1 {
		t.Errorf("Expected counter 1 after rollover, got %d", u.DailyAdCount)
	}
	if u.Stats.TotalAdsWatched != DailyLimit+1 {
		t.Errorf("Expected %d total ads, got %d", DailyLimit+1, u.Stats.TotalAdsWatched)
	}
}

func TestRecordAdWatchedConcurrentLastSlot(t *testing.T) {
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tr, s, _ := setupTracker(t, start)
	ctx := context.Background()

	for i := 1; i < DailyLimit; i++ {
		if _, err := tr.RecordAdWatched(ctx, "u1"); err != nil {
			t.Fatalf("Ad %d failed: %v", i, err)
		}
	}

	var wg sync.WaitGroup
	var ok, exceeded atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tr.RecordAdWatched(ctx, "u1")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, ErrQuotaExceeded):
				exceeded.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok.Load() != 1 || exceeded.Load() != 1 {
		t.Fatalf("Expected one credited ad and one ErrQuotaExceeded, got %d/%d", ok.Load(), exceeded.Load())
	}
	u, _ := s.GetUser(ctx, "u1")
	if u.DailyAdCount != DailyLimit || u.Balance != DailyLimit*AdReward {
		t.Errorf("Expected count %d and balance %d, got %d and %d",
			DailyLimit, DailyLimit*AdReward, u.DailyAdCount, u.Balance)
	}
}

func TestResetIfNewDay(t *testing.T) {
	start := time.Date(2026, 4, 1, 23, 30, 0, 0, time.UTC)
	tr, s, c := setupTracker(t, start)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := tr.RecordAdWatched(ctx, "u1"); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name          string
		at            time.Time
		expectedReset bool
		expectedCount int
	}{
		{name: "Same Day", at: start.Add(20 * time.Minute), expectedReset: false, expectedCount: 3},
		// less than 24h elapsed, but a later calendar date
		{name: "After Midnight", at: start.Add(45 * time.Minute), expectedReset: true, expectedCount: 0},
		{name: "Reloaded Same Day", at: start.Add(2 * time.Hour), expectedReset: false, expectedCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = tt.at
			u, err := s.GetUser(ctx, "u1")
			if err != nil {
				t.Fatal(err)
			}
			reset, err := tr.ResetIfNewDay(ctx, u)
			if err != nil {
				t.Fatalf("ResetIfNewDay failed: %v", err)
			}
			if reset != tt.expectedReset {
				t.Errorf("Expected reset=%v, got %v", tt.expectedReset, reset)
			}
			if u.DailyAdCount != tt.expectedCount {
				t.Errorf("Expected count %d, got %d", tt.expectedCount, u.DailyAdCount)
			}
			stored, _ := s.GetUser(ctx, "u1")
			if stored.DailyAdCount != tt.expectedCount {
				t.Errorf("Expected stored count %d, got %d", tt.expectedCount, stored.DailyAdCount)
			}
		})
	}
}

func TestCreditFailureKeepsSlot(t *testing.T) {
	start := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	s := storetest.New(t)
	err := s.CreateUser(context.Background(), &models.User{
		ID: "u1", ReferralCode: "001ABC", LastDailyReset: start, QuotaDay: "2026-04-01", JoinDate: start,
	})
	if err != nil {
		t.Fatal(err)
	}
	tr := NewTracker(s, failingCrediter{}, time.UTC, nil).WithClock(func() time.Time { return start })

	if _, err := tr.RecordAdWatched(context.Background(), "u1"); err == nil {
		t.Fatal("Expected credit failure")
	}
	u, _ := s.GetUser(context.Background(), "u1")
	if u.DailyAdCount != 1 || u.Balance != 0 {
		t.Errorf("Expected slot used without credit, got count %d balance %d", u.DailyAdCount, u.Balance)
	}
}

type failingCrediter struct{}

func (failingCrediter) Credit(context.Context, string, int64, models.Source) (*models.User, error) {
	return nil, errors.New("store unavailable")
}

func TestUntilReset(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	tests := []struct {
		name     string
		now      time.Time
		expected time.Duration
		text     string
	}{
		{
			name:     "Evening",
			now:      time.Date(2026, 4, 1, 21, 15, 0, 0, loc),
			expected: 2*time.Hour + 45*time.Minute,
			text:     "Resets in 2h 45m",
		},
		{
			name:     "Just After Midnight",
			now:      time.Date(2026, 4, 1, 0, 0, 30, 0, loc),
			expected: 24*time.Hour - 30*time.Second,
			text:     "Resets in 23h 59m",
		},
		{
			name:     "UTC Input",
			now:      time.Date(2026, 4, 1, 20, 0, 0, 0, time.UTC), // 23:00 local
			expected: time.Hour,
			text:     "Resets in 1h 0m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UntilReset(tt.now, loc)
			if got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
			if text := FormatUntilReset(got); text != tt.text {
				t.Errorf("Expected %q, got %q", tt.text, text)
			}
		})
	}
}
