package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    string
	Env     string
	DevMode bool

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	JWTSecret  string
	SessionTTL time.Duration
	// InitDataMaxAge bounds how old a Telegram launch signature may be.
	InitDataMaxAge time.Duration

	BotToken                string
	BotUsername             string
	BonusChannel            string
	VerifyChannelMembership bool

	Location *time.Location

	CommissionQueue   int
	CommissionWorkers int
}

// Load reads the .env file if present and builds the configuration from the
// environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Port:       getEnv("SERVER_PORT", "8080"),
		Env:        getEnv("APP_ENV", "development"),
		DevMode:    getBool("DEV_MODE", false),
		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", "postgres")),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "pepe_earn"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "pepe.db"),

		JWTSecret:  os.Getenv("JWT_SECRET"),
		SessionTTL: getDuration("SESSION_TTL", 24*time.Hour),

		InitDataMaxAge: getDuration("INIT_DATA_MAX_AGE", 24*time.Hour),

		BotToken:                os.Getenv("TELEGRAM_BOT_TOKEN"),
		BotUsername:             strings.TrimPrefix(getEnv("BOT_USERNAME", "pepe_rewardbot"), "@"),
		BonusChannel:            getEnv("BONUS_CHANNEL", "@pepe_rewardofficial"),
		VerifyChannelMembership: getBool("VERIFY_CHANNEL_MEMBERSHIP", false),

		CommissionQueue:   getInt("COMMISSION_QUEUE", 256),
		CommissionWorkers: getInt("COMMISSION_WORKERS", 1),
	}

	loc := time.Local
	if tz := os.Getenv("TZ"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ %q: %w", tz, err)
		}
		loc = l
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.JWTSecret == "" {
		if !c.DevMode {
			return fmt.Errorf("JWT_SECRET environment variable is required")
		}
		c.JWTSecret = "dev-secret-change-in-production"
	}
	if c.BotToken == "" && !c.DevMode {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is required")
	}
	if c.CommissionWorkers < 1 {
		c.CommissionWorkers = 1
	}
	if c.CommissionQueue < 1 {
		c.CommissionQueue = 1
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// BotURL is the base deep link of the bot, used for referral links.
func (c *Config) BotURL() string {
	return "https://t.me/" + c.BotUsername
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
