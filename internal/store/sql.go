package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"pepeearn/internal/models"
)

const userColumns = `id, username, first_name, balance, daily_ad_count, last_daily_reset,
	quota_day, bonus_completed, referral_code, referred_by, total_earned,
	total_ads_watched, total_referrals, referral_earnings, join_date`

const withdrawalColumns = `id, user_id, amount, method, binance_email, status, created_at, user_name`

// SQLStore implements Store on Postgres or SQLite. The user document is a
// row of the users table with the stats fields flattened into columns.
type SQLStore struct {
	db     *sql.DB
	hub    *Hub
	logger *zap.Logger
	// pgNotify routes change topics through pg_notify so every server
	// process sees them; otherwise they go straight to the hub.
	pgNotify bool
}

func NewSQLStore(db *sql.DB, driver string, hub *Hub, logger *zap.Logger) *SQLStore {
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLStore{
		db:       db,
		hub:      hub,
		logger:   logger,
		pgNotify: driver == "postgres",
	}
}

var _ Store = (*SQLStore)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	var referredBy sql.NullString
	err := row.Scan(
		&u.ID, &u.Username, &u.FirstName, &u.Balance, &u.DailyAdCount, &u.LastDailyReset,
		&u.QuotaDay, &u.BonusCompleted, &u.ReferralCode, &referredBy, &u.Stats.TotalEarned,
		&u.Stats.TotalAdsWatched, &u.Stats.TotalReferrals, &u.Stats.ReferralEarnings, &u.JoinDate,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if referredBy.Valid {
		u.ReferredBy = referredBy.String
	}
	return &u, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, s.wrap("get user", err)
	}
	return u, err
}

func (s *SQLStore) CreateUser(ctx context.Context, u *models.User) error {
	var referredBy sql.NullString
	if u.ReferredBy != "" {
		referredBy = sql.NullString{String: u.ReferredBy, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING`,
		u.ID, u.Username, u.FirstName, u.Balance, u.DailyAdCount, u.LastDailyReset.UTC(),
		u.QuotaDay, u.BonusCompleted, u.ReferralCode, referredBy, u.Stats.TotalEarned,
		u.Stats.TotalAdsWatched, u.Stats.TotalReferrals, u.Stats.ReferralEarnings, u.JoinDate.UTC(),
	)
	if err != nil {
		return s.wrap("create user", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrExists
	}
	s.changed(ctx, UserTopic(u.ID))
	return nil
}

func (s *SQLStore) UpdateProfile(ctx context.Context, id, username, firstName string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET username = $1, first_name = $2 WHERE id = $3`,
		username, firstName, id)
	if err != nil {
		return s.wrap("update profile", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.changed(ctx, UserTopic(id))
	return nil
}

// Increment applies every field of d as an atomic in-place addition and
// returns the updated record.
func (s *SQLStore) Increment(ctx context.Context, id string, d models.Delta) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			balance = balance + $1,
			total_earned = total_earned + $2,
			total_ads_watched = total_ads_watched + $3,
			total_referrals = total_referrals + $4,
			referral_earnings = referral_earnings + $5
		WHERE id = $6
		RETURNING `+userColumns,
		d.Balance, d.TotalEarned, d.TotalAdsWatched, d.TotalReferrals, d.ReferralEarnings, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, s.wrap("increment", err)
	}
	s.changed(ctx, UserTopic(id))
	return u, nil
}

// FindByReferralCode returns every user holding code, oldest account first.
func (s *SQLStore) FindByReferralCode(ctx context.Context, code string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM users WHERE referral_code = $1 ORDER BY join_date, id`, code)
	if err != nil {
		return nil, s.wrap("find by referral code", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, s.wrap("find by referral code", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("find by referral code", err)
	}
	return ids, nil
}

// ClaimReferrer sets referred_by only while it is still unset.
func (s *SQLStore) ClaimReferrer(ctx context.Context, id, referrerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET referred_by = $1
		WHERE id = $2 AND referred_by IS NULL AND id <> $1`,
		referrerID, id)
	if err != nil {
		return false, s.wrap("claim referrer", err)
	}
	return s.affected(ctx, res, id)
}

// ResetQuota zeroes the daily ad counter when day is a later calendar day
// than the one the counter belongs to.
func (s *SQLStore) ResetQuota(ctx context.Context, id, day string, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET daily_ad_count = 0, last_daily_reset = $1, quota_day = $2
		WHERE id = $3 AND quota_day < $2`,
		now.UTC(), day, id)
	if err != nil {
		return false, s.wrap("reset quota", err)
	}
	return s.affected(ctx, res, id)
}

// ClaimAdSlot counts one watched ad against the daily limit. A counter left
// over from an earlier day is reset first. ErrPrecondition means the limit
// for day is already used up.
func (s *SQLStore) ClaimAdSlot(ctx context.Context, id, day string, now time.Time, limit int) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET
			daily_ad_count = CASE WHEN quota_day < $1 THEN 1 ELSE daily_ad_count + 1 END,
			last_daily_reset = CASE WHEN quota_day < $1 THEN $2 ELSE last_daily_reset END,
			quota_day = CASE WHEN quota_day < $1 THEN $1 ELSE quota_day END,
			total_ads_watched = total_ads_watched + 1
		WHERE id = $3 AND (quota_day < $1 OR daily_ad_count < $4)
		RETURNING `+userColumns,
		day, now.UTC(), id, limit)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.missOrPrecondition(ctx, id)
		}
		return nil, s.wrap("claim ad slot", err)
	}
	s.changed(ctx, UserTopic(id))
	return u, nil
}

func (s *SQLStore) ClaimBonus(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET bonus_completed = TRUE WHERE id = $1 AND bonus_completed = FALSE`, id)
	if err != nil {
		return false, s.wrap("claim bonus", err)
	}
	return s.affected(ctx, res, id)
}

func (s *SQLStore) ResetBonus(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET bonus_completed = FALSE WHERE id = $1`, id)
	if err != nil {
		return s.wrap("reset bonus", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	s.changed(ctx, UserTopic(id))
	return nil
}

// DebitCovered subtracts amount from the balance only if the stored balance
// covers it.
func (s *SQLStore) DebitCovered(ctx context.Context, id string, amount int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET balance = balance - $1
		WHERE id = $2 AND balance >= $1
		RETURNING `+userColumns,
		amount, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, s.missOrPrecondition(ctx, id)
		}
		return nil, s.wrap("debit", err)
	}
	s.changed(ctx, UserTopic(id))
	return u, nil
}

func (s *SQLStore) AppendWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO withdrawals (`+withdrawalColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		w.ID, w.UserID, w.Amount, w.Method, w.BinanceEmail, string(w.Status), w.CreatedAt.UTC(), w.UserName)
	if err != nil {
		return s.wrap("append withdrawal", err)
	}
	s.changed(ctx, WithdrawalsTopic(w.UserID))
	return nil
}

// ListWithdrawals returns the user's withdrawals in no particular order.
func (s *SQLStore) ListWithdrawals(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+withdrawalColumns+` FROM withdrawals WHERE user_id = $1`, userID)
	if err != nil {
		return nil, s.wrap("list withdrawals", err)
	}
	defer rows.Close()

	var out []models.Withdrawal
	for rows.Next() {
		var w models.Withdrawal
		var status string
		if err := rows.Scan(&w.ID, &w.UserID, &w.Amount, &w.Method, &w.BinanceEmail,
			&status, &w.CreatedAt, &w.UserName); err != nil {
			return nil, s.wrap("list withdrawals", err)
		}
		w.Status = models.WithdrawalStatus(status)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("list withdrawals", err)
	}
	return out, nil
}

func (s *SQLStore) Subscribe(topic string, fn func(topic string)) (cancel func()) {
	return s.hub.Subscribe(topic, fn)
}

func (s *SQLStore) affected(ctx context.Context, res sql.Result, id string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap("rows affected", err)
	}
	if n == 0 {
		if _, err := s.GetUser(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	s.changed(ctx, UserTopic(id))
	return true, nil
}

func (s *SQLStore) missOrPrecondition(ctx context.Context, id string) error {
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}
	return ErrPrecondition
}

func (s *SQLStore) changed(ctx context.Context, topic string) {
	if !s.pgNotify {
		s.hub.Publish(topic)
		return
	}
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, topic); err != nil {
		s.logger.Warn("Error publishing change", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *SQLStore) wrap(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		s.logger.Error("PostgreSQL error",
			zap.String("op", op),
			zap.String("message", pqErr.Message),
			zap.String("detail", pqErr.Detail),
			zap.String("code", string(pqErr.Code)),
		)
	}
	return fmt.Errorf("store %s: %w", op, err)
}
