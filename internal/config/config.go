// Package config loads application configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable of the same upper-case name.
type Config struct {
	Env  string // application environment (development, production)
	Port string // HTTP port to listen on

	DBUser    string
	DBPass    string // empty allowed
	DBHost    string
	DBPort    string
	DBName    string
	DBMigrate bool // run embedded migrations on start

	JWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisTLS      bool
	SeatLockTTL   time.Duration

	RabbitURL      string // empty disables event publishing
	EventsQueue    string
	AuditLogPath   string
	ConsumeEvents  bool
	PublishTimeout time.Duration

	MaxDuration        time.Duration // 0 means no cap
	RevalidateOnUpdate bool

	RateLimit RateLimitConfig
}

// RateLimitConfig configures the Redis token bucket in front of the API.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
}

var required = []string{"APP_ENV", "APP_PORT", "DB_USER", "DB_HOST", "DB_PORT", "DB_NAME", "JWT_SECRET"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_PORT", "8080")
	v.SetDefault("DB_MIGRATE", true)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("SEAT_LOCK_TTL", 5*time.Second)
	v.SetDefault("BOOKING_PUBLISH_TIMEOUT", 2*time.Second)
	v.SetDefault("BOOKING_EVENTS_QUEUE", "booking_events")
	v.SetDefault("BOOKING_AUDIT_LOG", "logs/booking.log")
	v.SetDefault("BOOKING_CONSUME_EVENTS", true)
	v.SetDefault("BOOKING_MAX_DURATION", 0)
	v.SetDefault("BOOKING_REVALIDATE_ON_UPDATE", false)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_CAPACITY", 60)
	v.SetDefault("RATE_LIMIT_REFILL_TOKENS", 1)
	v.SetDefault("RATE_LIMIT_REFILL_INTERVAL", time.Second)
	v.SetDefault("RATE_LIMIT_TTL", 10*time.Minute)
	v.SetDefault("RATE_LIMIT_KEY_STRATEGY", "ip_user_route")
	v.SetDefault("RATE_LIMIT_PREFIX", "rl")
}

// Load reads an optional .env file into the process environment and then
// builds a Config from the environment.  Missing required variables are
// reported together in one error.
func Load() (Config, error) {
	_ = godotenv.Load()
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	var missing []string
	for _, k := range required {
		if strings.TrimSpace(v.GetString(k)) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}

	cfg := Config{
		Env:       v.GetString("APP_ENV"),
		Port:      v.GetString("APP_PORT"),
		DBUser:    v.GetString("DB_USER"),
		DBPass:    v.GetString("DB_PASS"),
		DBHost:    v.GetString("DB_HOST"),
		DBPort:    v.GetString("DB_PORT"),
		DBName:    v.GetString("DB_NAME"),
		DBMigrate: v.GetBool("DB_MIGRATE"),
		JWTSecret: v.GetString("JWT_SECRET"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		RedisTLS:      v.GetBool("REDIS_TLS"),
		SeatLockTTL:   v.GetDuration("SEAT_LOCK_TTL"),

		RabbitURL:      v.GetString("RABBITMQ_URL"),
		EventsQueue:    v.GetString("BOOKING_EVENTS_QUEUE"),
		AuditLogPath:   v.GetString("BOOKING_AUDIT_LOG"),
		ConsumeEvents:  v.GetBool("BOOKING_CONSUME_EVENTS"),
		PublishTimeout: v.GetDuration("BOOKING_PUBLISH_TIMEOUT"),

		MaxDuration:        v.GetDuration("BOOKING_MAX_DURATION"),
		RevalidateOnUpdate: v.GetBool("BOOKING_REVALIDATE_ON_UPDATE"),

		RateLimit: loadRateLimit(v),
	}
	if host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT"); host != "" && port != "" {
		cfg.RedisAddr = host + ":" + port
	}
	if cfg.SeatLockTTL <= 0 {
		return Config{}, errors.New("SEAT_LOCK_TTL must be positive")
	}
	if cfg.MaxDuration < 0 {
		return Config{}, errors.New("BOOKING_MAX_DURATION must not be negative")
	}
	return cfg, nil
}

func loadRateLimit(v *viper.Viper) RateLimitConfig {
	rl := RateLimitConfig{
		Enabled:        v.GetBool("RATE_LIMIT_ENABLED"),
		Capacity:       v.GetInt("RATE_LIMIT_CAPACITY"),
		RefillTokens:   v.GetInt("RATE_LIMIT_REFILL_TOKENS"),
		RefillInterval: v.GetDuration("RATE_LIMIT_REFILL_INTERVAL"),
		TTL:            v.GetDuration("RATE_LIMIT_TTL"),
		KeyStrategy:    v.GetString("RATE_LIMIT_KEY_STRATEGY"),
		Prefix:         v.GetString("RATE_LIMIT_PREFIX"),
	}
	if rl.Capacity < 1 {
		rl.Capacity = 1
	}
	if rl.RefillTokens < 1 {
		rl.RefillTokens = 1
	}
	if rl.RefillInterval <= 0 {
		rl.RefillInterval = time.Second
	}
	if minTTL := 5 * rl.RefillInterval; rl.TTL < minTTL {
		rl.TTL = minTTL
	}
	return rl
}

// DSN returns the MySQL data source name.  parseTime and loc=UTC make
// DATETIME columns scan into UTC time.Time values; clientFoundRows makes
// an UPDATE that changes nothing still report the matched row.
func (c Config) DSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true",
		auth, c.DBHost, c.DBPort, c.DBName)
}
