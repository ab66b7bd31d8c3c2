package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"pepeearn/internal/bonus"
	"pepeearn/internal/models"
	"pepeearn/internal/quota"
	"pepeearn/internal/referral"
	"pepeearn/internal/store"
	"pepeearn/internal/telegram"
	"pepeearn/internal/withdrawal"
)

type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateProfile(ctx context.Context, id, username, firstName string) error
	Subscribe(topic string, fn func(topic string)) (cancel func())
}

type Config struct {
	Store       Store
	Graph       *referral.Graph
	Tracker     *quota.Tracker
	Bonus       *bonus.Verifier
	Withdrawals *withdrawal.Manager
	// BotURL is the https://t.me/<bot> base of referral links.
	BotURL string
	// IdleTTL discards a session that has not been used for that long.
	// Zero keeps sessions until logout.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

type deps struct {
	store       Store
	graph       *referral.Graph
	tracker     *quota.Tracker
	bonus       *bonus.Verifier
	withdrawals *withdrawal.Manager
	botURL      string
	logger      *zap.Logger
}

// Registry holds the open sessions keyed by user id.
type Registry struct {
	deps    *deps
	idleTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry(c Config) *Registry {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &Registry{
		deps: &deps{
			store:       c.Store,
			graph:       c.Graph,
			tracker:     c.Tracker,
			bonus:       c.Bonus,
			withdrawals: c.Withdrawals,
			botURL:      c.BotURL,
			logger:      c.Logger,
		},
		idleTTL:  c.IdleTTL,
		sessions: make(map[string]*Session),
	}
}

// Open logs the user in: the record is created on first login, the profile
// and the daily counter are brought up to date, and a referral carried by
// the launch parameter is applied. An already open session for the same user
// is reused.
func (r *Registry) Open(ctx context.Context, identity telegram.Identity) (*Session, error) {
	u, err := r.loadOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}

	if _, err := r.deps.tracker.ResetIfNewDay(ctx, u); err != nil {
		r.deps.logger.Warn("Error applying daily reset", zap.String("user_id", u.ID), zap.Error(err))
	}

	if r.attributeLaunch(ctx, identity, u) {
		if fresh, err := r.deps.store.GetUser(ctx, u.ID); err == nil {
			u = fresh
		}
	}

	r.Sweep()

	now := r.deps.tracker.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[identity.ID]; ok {
		s.seen = now
		s.refresh(identity)
		return s, nil
	}
	s := newSession(r.deps, identity, u)
	s.seen = now
	r.sessions[identity.ID] = s
	r.deps.logger.Info("Session opened", zap.String("user_id", identity.ID))
	return s, nil
}

func (r *Registry) loadOrCreate(ctx context.Context, identity telegram.Identity) (*models.User, error) {
	u, err := r.deps.store.GetUser(ctx, identity.ID)
	if err == nil {
		if u.Username != identity.Username || u.FirstName != identity.FirstName {
			if err := r.deps.store.UpdateProfile(ctx, u.ID, identity.Username, identity.FirstName); err != nil {
				r.deps.logger.Warn("Error updating profile", zap.String("user_id", u.ID), zap.Error(err))
			} else {
				u.Username, u.FirstName = identity.Username, identity.FirstName
			}
		}
		return u, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		r.deps.logger.Error("Error loading user", zap.String("user_id", identity.ID), zap.Error(err))
		return nil, err
	}

	now := r.deps.tracker.Now()
	u = &models.User{
		ID:             identity.ID,
		Username:       identity.Username,
		FirstName:      identity.FirstName,
		LastDailyReset: now,
		QuotaDay:       r.deps.tracker.Today(),
		ReferralCode:   referral.GenerateCode(identity.ID),
		JoinDate:       now,
	}
	if err := r.deps.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrExists) {
			// created by a concurrent login
			return r.deps.store.GetUser(ctx, identity.ID)
		}
		r.deps.logger.Error("Error creating user", zap.String("user_id", identity.ID), zap.Error(err))
		return nil, err
	}
	r.deps.logger.Info("User created",
		zap.String("user_id", u.ID),
		zap.String("referral_code", u.ReferralCode),
	)
	return u, nil
}

// attributeLaunch applies the launch parameter as a referral code. Failures
// are logged only.
func (r *Registry) attributeLaunch(ctx context.Context, identity telegram.Identity, u *models.User) bool {
	code := referral.NormalizeCode(identity.StartParam)
	if code == "" || code == u.ReferralCode || u.ReferredBy != "" {
		return false
	}

	referrerID, err := r.deps.graph.Attribute(ctx, u.ID, code)
	if err != nil {
		r.deps.logger.Info("Launch referral not applied",
			zap.String("user_id", u.ID),
			zap.String("code", code),
			zap.Error(err),
		)
		return referrerID != ""
	}
	return true
}

// Get returns the user's open session. A session idle for longer than the
// configured TTL is discarded instead.
func (r *Registry) Get(userID string) (*Session, bool) {
	now := r.deps.tracker.Now()

	r.mu.Lock()
	s, ok := r.sessions[userID]
	if ok && r.expired(s, now) {
		delete(r.sessions, userID)
		r.mu.Unlock()
		s.Close()
		r.deps.logger.Info("Session expired", zap.String("user_id", userID))
		return nil, false
	}
	if ok {
		s.seen = now
	}
	r.mu.Unlock()
	return s, ok
}

func (r *Registry) expired(s *Session, now time.Time) bool {
	return r.idleTTL > 0 && now.Sub(s.seen) >= r.idleTTL
}

// Sweep discards every session idle for longer than the TTL and returns how
// many were closed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	now := r.deps.tracker.Now()

	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if r.expired(s, now) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		r.deps.logger.Info("Idle sessions discarded", zap.Int("count", len(idle)))
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.idleTTL <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Close ends the user's session. It reports whether one was open.
func (r *Registry) Close(userID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	delete(r.sessions, userID)
	r.mu.Unlock()

	if ok {
		s.Close()
		r.deps.logger.Info("Session closed", zap.String("user_id", userID))
	}
	return ok
}

func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
