package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func env(vals map[string]string) Getenv {
	return func(key string) string { return vals[key] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"TRANSCRIPT_TABLE": "chat-transcript",
		"PARAM_PREFIX":     "/restaurant-agent",
		"MENU_DB_PATH":     "/tmp/menu.db",
		"REDIS_ADDR":       "localhost:6379",
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(env(baseEnv()))
	require.NoError(t, err)
	require.Equal(t, ModeLambda, cfg.Mode)
	require.Equal(t, "default", cfg.Tenant)
	require.Equal(t, 24*time.Hour, cfg.StateTTL)
	require.Equal(t, 30*time.Second, cfg.CallTimeout)
	require.Equal(t, LockRedis, cfg.LockBackend)
	require.Equal(t, 2*time.Minute, cfg.LockLease)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, 3, cfg.DialogueMaxRounds)
	require.Equal(t, 2000, cfg.MaxMessageLength)
}

func TestLoadFrom_MissingRequired(t *testing.T) {
	vals := baseEnv()
	delete(vals, "REDIS_ADDR")
	delete(vals, "PARAM_PREFIX")
	_, err := LoadFrom(env(vals))
	require.Error(t, err)
	require.Contains(t, err.Error(), "REDIS_ADDR")
	require.Contains(t, err.Error(), "PARAM_PREFIX")
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	vals := baseEnv()
	vals["STATE_TTL"] = "one day"
	vals["REDIS_DB"] = "x"
	_, err := LoadFrom(env(vals))
	require.Error(t, err)
	require.Contains(t, err.Error(), "STATE_TTL")
	require.Contains(t, err.Error(), "REDIS_DB")
}

func TestLoadFrom_Overrides(t *testing.T) {
	vals := baseEnv()
	vals["RUN_MODE"] = "HTTP"
	vals["LOCK_BACKEND"] = "memory"
	vals["STATE_TTL"] = "1h"
	vals["CALL_TIMEOUT"] = "5s"
	cfg, err := LoadFrom(env(vals))
	require.NoError(t, err)
	require.Equal(t, ModeHTTP, cfg.Mode)
	require.Equal(t, LockMemory, cfg.LockBackend)
	require.Equal(t, time.Hour, cfg.StateTTL)
	require.Equal(t, 5*time.Second, cfg.CallTimeout)
}

func TestLoadFrom_RejectsUnknownMode(t *testing.T) {
	vals := baseEnv()
	vals["RUN_MODE"] = "grpc"
	_, err := LoadFrom(env(vals))
	require.ErrorContains(t, err, "RUN_MODE")
}

func TestLoadFrom_LeaseShorterThanTurn(t *testing.T) {
	vals := baseEnv()
	vals["CALL_TIMEOUT"] = "90s"
	_, err := LoadFrom(env(vals))
	require.ErrorContains(t, err, "LOCK_LEASE")
}
