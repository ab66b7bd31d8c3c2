package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"pepeearn/internal/config"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// InitDB opens the configured database, checks the connection and creates
// the tables the store needs.
func InitDB(cfg *config.Config) (*sql.DB, error) {
	switch cfg.DBDriver {
	case DriverSQLite:
		return Open(DriverSQLite, cfg.SQLitePath)
	default:
		return Open(DriverPostgres, PostgresDSN(cfg))
	}
}

// PostgresDSN is shared by the pool and the LISTEN connection.
func PostgresDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)
}

func Open(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer at a time; SQLite serialises writes anyway
		db.SetMaxOpenConns(1)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	if err = createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	return db, nil
}

// The statements are kept to the subset of SQL that both Postgres and SQLite
// accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id VARCHAR(64) PRIMARY KEY,
		username VARCHAR(255) NOT NULL DEFAULT '',
		first_name VARCHAR(255) NOT NULL DEFAULT '',
		balance BIGINT NOT NULL DEFAULT 0,
		daily_ad_count INTEGER NOT NULL DEFAULT 0,
		last_daily_reset TIMESTAMP NOT NULL,
		quota_day VARCHAR(10) NOT NULL,
		bonus_completed BOOLEAN NOT NULL DEFAULT FALSE,
		referral_code VARCHAR(16) NOT NULL,
		referred_by VARCHAR(64),
		total_earned BIGINT NOT NULL DEFAULT 0,
		total_ads_watched BIGINT NOT NULL DEFAULT 0,
		total_referrals BIGINT NOT NULL DEFAULT 0,
		referral_earnings BIGINT NOT NULL DEFAULT 0,
		join_date TIMESTAMP NOT NULL,
		CONSTRAINT valid_daily_ad_count CHECK (daily_ad_count >= 0 AND daily_ad_count <= 40)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_referral_code ON users(referral_code)`,
	`CREATE TABLE IF NOT EXISTS withdrawals (
		id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(64) NOT NULL,
		amount BIGINT NOT NULL,
		method VARCHAR(20) NOT NULL,
		binance_email VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL,
		created_at TIMESTAMP NOT NULL,
		user_name VARCHAR(255) NOT NULL DEFAULT '',
		CONSTRAINT valid_withdrawal_status CHECK (status IN ('pending', 'completed')),
		CONSTRAINT valid_withdrawal_amount CHECK (amount >= 10000)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_user_id ON withdrawals(user_id)`,
}

func createTables(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
