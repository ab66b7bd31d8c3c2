package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pepeearn/internal/models"
	"pepeearn/internal/monitoring"
	"pepeearn/internal/store"
)

const (
	DailyLimit       = 40
	AdReward   int64 = 250
)

var ErrQuotaExceeded = fmt.Errorf("%w: daily ad limit reached, come back tomorrow", models.ErrValidation)

type State int

const (
	Available State = iota
	Exhausted
)

func (s State) String() string {
	if s == Exhausted {
		return "exhausted"
	}
	return "available"
}

type Store interface {
	ResetQuota(ctx context.Context, id, day string, now time.Time) (bool, error)
	ClaimAdSlot(ctx context.Context, id, day string, now time.Time, limit int) (*models.User, error)
}

type Crediter interface {
	Credit(ctx context.Context, userID string, amount int64, source models.Source) (*models.User, error)
}

// Tracker caps rewarded ad views per local calendar day. Counters reset
// lazily: when a record is loaded on a later day, or when the first ad of a
// later day is claimed.
type Tracker struct {
	store  Store
	ledger Crediter
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewTracker(s Store, ledger Crediter, loc *time.Location, logger *zap.Logger) *Tracker {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: s, ledger: ledger, loc: loc, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

func (t *Tracker) Now() time.Time { return t.now() }

func (t *Tracker) Location() *time.Location { return t.loc }

func (t *Tracker) Today() string {
	return models.DayKey(t.now(), t.loc)
}

// State reports the quota state of u as of now, counting a counter from an
// earlier day as already reset.
func (t *Tracker) State(u *models.User) State {
	if u.QuotaDay < t.Today() {
		return Available
	}
	if u.DailyAdCount >= DailyLimit {
		return Exhausted
	}
	return Available
}

// Remaining is the number of ads u may still be credited for today.
func (t *Tracker) Remaining(u *models.User) int {
	if u.QuotaDay < t.Today() {
		return DailyLimit
	}
	if n := DailyLimit - u.DailyAdCount; n > 0 {
		return n
	}
	return 0
}

// ResetIfNewDay zeroes the counter of u when it belongs to an earlier day
// and updates u to match the store.
func (t *Tracker) ResetIfNewDay(ctx context.Context, u *models.User) (bool, error) {
	now := t.now()
	today := models.DayKey(now, t.loc)
	if u.QuotaDay >= today {
		return false, nil
	}

	reset, err := t.store.ResetQuota(ctx, u.ID, today, now)
	if err != nil {
		return false, err
	}
	if reset {
		u.DailyAdCount = 0
		u.LastDailyReset = now
		u.QuotaDay = today
		t.logger.Debug("Daily quota reset", zap.String("user_id", u.ID), zap.String("day", today))
	}
	return reset, nil
}

// RecordAdWatched counts one watched ad and credits the ad reward. The
// counter increment and the credit are separate writes: if the credit fails
// the slot stays used.
func (t *Tracker) RecordAdWatched(ctx context.Context, userID string) (*models.User, error) {
	now := t.now()
	day := models.DayKey(now, t.loc)

	if _, err := t.store.ClaimAdSlot(ctx, userID, day, now, DailyLimit); err != nil {
		if errors.Is(err, store.ErrPrecondition) {
			monitoring.QuotaExceeded.Inc()
			return nil, ErrQuotaExceeded
		}
		return nil, err
	}

	u, err := t.ledger.Credit(ctx, userID, AdReward, models.SourceAdReward)
	if err != nil {
		t.logger.Warn("Ad counted but reward not credited",
			zap.String("user_id", userID),
			zap.String("day", day),
			zap.Error(err),
		)
		return nil, err
	}
	return u, nil
}

// UntilReset is the time left until the next local midnight.
func UntilReset(now time.Time, loc *time.Location) time.Duration {
	if loc == nil {
		loc = time.Local
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc)
	return midnight.Sub(local)
}

func FormatUntilReset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	return fmt.Sprintf("Resets in %dh %dm", hours, minutes)
}
