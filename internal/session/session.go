package session

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pepeearn/internal/ads"
	"pepeearn/internal/bonus"
	"pepeearn/internal/models"
	"pepeearn/internal/quota"
	"pepeearn/internal/referral"
	"pepeearn/internal/store"
	"pepeearn/internal/telegram"
	"pepeearn/internal/withdrawal"
)

// Session is one logged-in user. It caches the user record between requests
// and serializes the user's mutations. The cache is dropped whenever the
// store reports a change to the record or a mutation fails.
type Session struct {
	deps *deps
	id   string

	// seen is guarded by the registry's lock.
	seen time.Time

	// op serializes mutations; mu guards the fields below and is never
	// held across a store call.
	op sync.Mutex

	mu          sync.Mutex
	identity    telegram.Identity
	user        models.User
	stale       bool
	gen         uint64
	watchers    map[int]chan string
	nextWatcher int
	cancels     []func()
	closed      bool
}

func newSession(d *deps, identity telegram.Identity, u *models.User) *Session {
	s := &Session{
		deps:     d,
		id:       identity.ID,
		identity: identity,
		user:     *u,
		watchers: make(map[int]chan string),
	}
	s.cancels = []func(){
		d.store.Subscribe(store.UserTopic(u.ID), s.onChange),
		d.store.Subscribe(store.WithdrawalsTopic(u.ID), s.onChange),
	}
	return s
}

func (s *Session) ID() string { return s.id }

// refresh adopts the identity of a repeated login and drops the cache.
func (s *Session) refresh(identity telegram.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = identity
	s.stale = true
}

func (s *Session) onChange(topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(topic, "user:") {
		s.stale = true
		s.gen++
	}
	for _, ch := range s.watchers {
		select {
		case ch <- topic:
		default:
		}
	}
}

// Watch returns a channel receiving the topics of store changes that concern
// this user. Notifications coalesce when the receiver falls behind.
func (s *Session) Watch() (<-chan string, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan string, 1)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	s.nextWatcher++
	id := s.nextWatcher
	s.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.watchers[id]; ok {
				delete(s.watchers, id)
				close(ch)
			}
		})
	}
}

func (s *Session) markStale() {
	s.mu.Lock()
	s.stale = true
	s.mu.Unlock()
}

// Snapshot returns the cached user record, reloading it first when stale.
func (s *Session) Snapshot(ctx context.Context) (models.User, error) {
	s.mu.Lock()
	if !s.stale {
		u := s.user
		s.mu.Unlock()
		return u, nil
	}
	gen := s.gen
	s.mu.Unlock()

	u, err := s.deps.store.GetUser(ctx, s.ID())
	if err != nil {
		s.deps.logger.Error("Error reloading user", zap.String("user_id", s.ID()), zap.Error(err))
		return models.User{}, err
	}
	if _, err := s.deps.tracker.ResetIfNewDay(ctx, u); err != nil {
		s.deps.logger.Warn("Error applying daily reset", zap.String("user_id", s.ID()), zap.Error(err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = *u
	if s.gen == gen {
		s.stale = false
	}
	return *u, nil
}

// apply changes the cached record ahead of the store write.
func (s *Session) apply(fn func(u *models.User)) {
	s.mu.Lock()
	fn(&s.user)
	s.mu.Unlock()
}

// settle replaces the cache with the record the store acknowledged, or
// drops it when the write failed.
func (s *Session) settle(u *models.User, err error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || u == nil {
		s.stale = true
		return nil, err
	}
	s.user = *u
	out := *u
	return &out, nil
}

// WatchAd shows a rewarded ad through player and credits it when watched to
// the end.
func (s *Session) WatchAd(ctx context.Context, player ads.Player) (*models.User, error) {
	s.op.Lock()
	defer s.op.Unlock()

	cached, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if s.deps.tracker.State(&cached) == quota.Exhausted {
		return nil, quota.ErrQuotaExceeded
	}
	if !player.IsReady() {
		return nil, ads.ErrNotReady
	}
	if err := player.PlayRewarded(ctx); err != nil {
		err = ads.Classify(err)
		s.deps.logger.Info("Ad not completed", zap.String("user_id", s.ID()), zap.Error(err))
		return nil, err
	}

	today := s.deps.tracker.Today()
	s.apply(func(u *models.User) {
		if u.QuotaDay < today {
			u.DailyAdCount = 0
			u.QuotaDay = today
		}
		u.DailyAdCount++
		u.Balance += quota.AdReward
		u.Stats.TotalEarned += quota.AdReward
		u.Stats.TotalAdsWatched++
	})
	return s.settle(s.deps.tracker.RecordAdWatched(ctx, s.ID()))
}

// VerifyBonus completes the one-time bonus task.
func (s *Session) VerifyBonus(ctx context.Context) (*models.User, error) {
	s.op.Lock()
	defer s.op.Unlock()

	cached, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if cached.BonusCompleted {
		return nil, bonus.ErrAlreadyCompleted
	}

	s.apply(func(u *models.User) {
		u.BonusCompleted = true
		u.Balance += bonus.Reward
		u.Stats.TotalEarned += bonus.Reward
	})
	return s.settle(s.deps.bonus.Verify(ctx, s.ID()))
}

// ResetBonus clears the bonus flag for testing the task again.
func (s *Session) ResetBonus(ctx context.Context) error {
	s.op.Lock()
	defer s.op.Unlock()

	err := s.deps.bonus.Reset(ctx, s.ID())
	s.markStale()
	return err
}

// ApplyReferralCode attributes the user to the holder of code and returns
// the referrer id with the updated record.
func (s *Session) ApplyReferralCode(ctx context.Context, code string) (string, *models.User, error) {
	s.op.Lock()
	defer s.op.Unlock()

	referrerID, err := s.deps.graph.Attribute(ctx, s.ID(), code)
	s.markStale()
	if err != nil {
		return referrerID, nil, err
	}

	u, err := s.Snapshot(ctx)
	if err != nil {
		return referrerID, nil, err
	}
	return referrerID, &u, nil
}

// Withdraw requests a payout of amount to the given Binance account. A
// returned withdrawal with a non-nil error was recorded without the balance
// being debited.
func (s *Session) Withdraw(ctx context.Context, amount int64, binanceEmail string) (*models.Withdrawal, *models.User, error) {
	s.op.Lock()
	defer s.op.Unlock()

	cached, err := s.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	name := s.identity.FirstName
	s.mu.Unlock()

	req := withdrawal.Request{
		UserID:       s.ID(),
		UserName:     name,
		Amount:       amount,
		BinanceEmail: binanceEmail,
	}
	if err := withdrawal.Validate(req, cached.Balance); err != nil {
		return nil, nil, err
	}

	s.apply(func(u *models.User) { u.Balance -= amount })
	w, u, err := s.deps.withdrawals.Submit(ctx, req, cached.Balance)
	u, err = s.settle(u, err)
	return w, u, err
}

// Withdrawals yields the user's withdrawal history, newest first.
func (s *Session) Withdrawals(ctx context.Context) iter.Seq2[models.Withdrawal, error] {
	return s.deps.withdrawals.ListForUser(ctx, s.ID())
}

// ReferralLink is the bot deep link carrying the user's referral code.
func (s *Session) ReferralLink() string {
	s.mu.Lock()
	code := s.user.ReferralCode
	s.mu.Unlock()
	return referral.Link(s.deps.botURL, code)
}

// QuotaView is the daily ad quota as shown to the user.
type QuotaView struct {
	Count     int    `json:"count"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	State     string `json:"state"`
	ResetsIn  string `json:"resetsIn"`
}

type Profile struct {
	User         models.User `json:"user"`
	Quota        QuotaView   `json:"quota"`
	ReferralLink string      `json:"referralLink"`
	ShareURL     string      `json:"shareUrl"`
}

func (s *Session) Profile(ctx context.Context) (*Profile, error) {
	u, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	tr := s.deps.tracker
	count := u.DailyAdCount
	if u.QuotaDay < tr.Today() {
		count = 0
	}
	link := s.ReferralLink()

	return &Profile{
		User: u,
		Quota: QuotaView{
			Count:     count,
			Limit:     quota.DailyLimit,
			Remaining: tr.Remaining(&u),
			State:     tr.State(&u).String(),
			ResetsIn:  quota.FormatUntilReset(quota.UntilReset(tr.Now(), tr.Location())),
		},
		ReferralLink: link,
		ShareURL:     referral.ShareURL(link),
	}, nil
}

// Close unsubscribes from store changes and ends every watcher.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	for id, ch := range s.watchers {
		delete(s.watchers, id)
		close(ch)
	}
}
