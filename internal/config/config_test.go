package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_USER", "app")
	v.Set("DB_HOST", "db")
	v.Set("DB_PORT", "3306")
	v.Set("DB_NAME", "study_room")
	v.Set("JWT_SECRET", "secret")
	return v
}

func TestFromViperDefaults(t *testing.T) {
	cfg, err := FromViper(baseViper())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.SeatLockTTL)
	assert.Equal(t, "booking_events", cfg.EventsQueue)
	assert.Equal(t, 2*time.Second, cfg.PublishTimeout)
	assert.Equal(t, time.Duration(0), cfg.MaxDuration)
	assert.False(t, cfg.RevalidateOnUpdate)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 60, cfg.RateLimit.Capacity)
	assert.Equal(t, "app@tcp(db:3306)/study_room?charset=utf8mb4&parseTime=true&loc=UTC&clientFoundRows=true", cfg.DSN())
}

func TestFromViperMissingRequired(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("DB_USER", "app")

	_, err := FromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_HOST")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.NotContains(t, err.Error(), "DB_USER")
}

func TestFromViperOverrides(t *testing.T) {
	v := baseViper()
	v.Set("DB_PASS", "pw")
	v.Set("BOOKING_MAX_DURATION", "4h")
	v.Set("BOOKING_REVALIDATE_ON_UPDATE", "true")
	v.Set("REDIS_HOST", "cache")
	v.Set("REDIS_PORT", "6380")
	v.Set("RATE_LIMIT_CAPACITY", 0)
	v.Set("RATE_LIMIT_TTL", "1s")

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, cfg.MaxDuration)
	assert.True(t, cfg.RevalidateOnUpdate)
	assert.Equal(t, "cache:6380", cfg.RedisAddr)
	assert.Equal(t, 1, cfg.RateLimit.Capacity)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.TTL)
	assert.Contains(t, cfg.DSN(), "app:pw@tcp(")
}

func TestFromViperRejectsBadDurations(t *testing.T) {
	v := baseViper()
	v.Set("SEAT_LOCK_TTL", "0s")
	_, err := FromViper(v)
	assert.Error(t, err)

	v = baseViper()
	v.Set("BOOKING_MAX_DURATION", "-1h")
	_, err = FromViper(v)
	assert.Error(t, err)
}
