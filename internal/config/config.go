// Package config loads process configuration from the environment once at
// startup.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"restaurant-agent/internal/domain"
)

type RunMode string

const (
	ModeLambda RunMode = "lambda"
	ModeHTTP   RunMode = "http"
)

type LockBackend string

const (
	LockRedis  LockBackend = "redis"
	LockMemory LockBackend = "memory"
)

type Config struct {
	Mode     RunMode
	HTTPAddr string
	LogLevel string

	Tenant           string
	StateTTL         time.Duration
	CallTimeout      time.Duration
	MaxMessageLength int

	TranscriptTable string
	ParamPrefix     string
	MenuDBPath      string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LockBackend LockBackend
	LockLease   time.Duration

	OpenAIModel       string
	OpenAIBaseURL     string
	DialogueMaxRounds int

	RateLimitPerMinute int
}

// Getenv matches os.Getenv so tests can feed a map.
type Getenv func(key string) string

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads the configuration through getenv and validates it.
func LoadFrom(getenv Getenv) (Config, error) {
	r := reader{getenv: getenv}

	cfg := Config{
		Mode:     RunMode(strings.ToLower(r.str("RUN_MODE", string(ModeLambda)))),
		HTTPAddr: r.str("HTTP_ADDR", ":8080"),
		LogLevel: r.str("LOG_LEVEL", "info"),

		Tenant:           r.str("TENANT", domain.DefaultTenant),
		StateTTL:         r.duration("STATE_TTL", 24*time.Hour),
		CallTimeout:      r.duration("CALL_TIMEOUT", 30*time.Second),
		MaxMessageLength: r.int("MAX_MESSAGE_LENGTH", 2000),

		TranscriptTable: r.required("TRANSCRIPT_TABLE"),
		ParamPrefix:     r.required("PARAM_PREFIX"),
		MenuDBPath:      r.required("MENU_DB_PATH"),

		RedisAddr:     r.required("REDIS_ADDR"),
		RedisPassword: r.str("REDIS_PASSWORD", ""),
		RedisDB:       r.int("REDIS_DB", 0),

		LockBackend: LockBackend(strings.ToLower(r.str("LOCK_BACKEND", string(LockRedis)))),
		LockLease:   r.duration("LOCK_LEASE", 2*time.Minute),

		OpenAIModel:       r.str("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:     r.str("OPENAI_BASE_URL", ""),
		DialogueMaxRounds: r.int("DIALOGUE_MAX_ROUNDS", 3),

		RateLimitPerMinute: r.int("RATE_LIMIT_PER_MINUTE", 60),
	}

	if len(r.missing) > 0 {
		return Config{}, fmt.Errorf("config: required environment variables not set: %s", strings.Join(r.missing, ", "))
	}
	if len(r.invalid) > 0 {
		return Config{}, fmt.Errorf("config: invalid values: %s", strings.Join(r.invalid, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Mode {
	case ModeLambda, ModeHTTP:
	default:
		return fmt.Errorf("config: unknown RUN_MODE %q", c.Mode)
	}
	switch c.LockBackend {
	case LockRedis, LockMemory:
	default:
		return fmt.Errorf("config: unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.StateTTL <= 0 {
		return errors.New("config: STATE_TTL must be positive")
	}
	if c.CallTimeout <= 0 {
		return errors.New("config: CALL_TIMEOUT must be positive")
	}
	// The holder renews the lease while it works; this floor leaves renewal
	// slack when Redis itself is slow.
	if c.LockBackend == LockRedis && c.LockLease < 2*c.CallTimeout {
		return fmt.Errorf("config: LOCK_LEASE (%s) must be at least twice CALL_TIMEOUT (%s)", c.LockLease, c.CallTimeout)
	}
	return nil
}

type reader struct {
	getenv  Getenv
	missing []string
	invalid []string
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) required(key string) string {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		r.missing = append(r.missing, key)
	}
	return v
}

func (r *reader) int(key string, def int) int {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(r.getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.invalid = append(r.invalid, key)
		return def
	}
	return d
}
