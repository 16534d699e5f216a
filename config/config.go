package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/domain"
)

// Config holds every setting the board service reads from the environment.
type Config struct {
	Debug     bool
	LogFormat string
	Port      string

	RedisConnectionString string
	BoardCacheTTL         time.Duration
	UpdatesChannel        string
	DeduperTTL            time.Duration

	StorageConnectionString string
	TemplatesTable          string
	ActivityQueue           string

	SessionIdleTTL     time.Duration
	IDStrategy         string
	OrphanPolicy       domain.OrphanPolicy
	ActivationDistance float64

	PublishWorkers        int
	PublishBuffer         int
	PublishTimeout        time.Duration
	PublishHandoffTimeout time.Duration

	Auth0Domain           string
	Auth0Audience         string
	Auth0TestMode         bool
	TestJWTSecret         string
	LocalAuthMode         bool
	LocalAuthSharedSecret string
	JWKSCacheTTL          time.Duration
}

// Load reads a local .env file when present and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv, applying defaults for unset keys.
func FromEnv(getenv func(string) string) (*Config, error) {
	r := reader{getenv: getenv}
	cfg := &Config{
		Debug:     r.boolean("DEBUG", false),
		LogFormat: strings.ToLower(r.str("LOG_FORMAT", "text")),
		Port:      r.str("PORT", "8080"),

		RedisConnectionString: r.str("REDIS_CONNECTION_STRING", ""),
		BoardCacheTTL:         r.duration("BOARD_CACHE_TTL", 10*time.Minute),
		UpdatesChannel:        r.str("BOARD_UPDATES_CHANNEL", "board-updates"),
		DeduperTTL:            r.duration("DEDUPER_TTL", 24*time.Hour),

		StorageConnectionString: r.str("STORAGE_CONNECTION_STRING", ""),
		TemplatesTable:          r.str("TEMPLATES_TABLE", "BoardTemplates"),
		ActivityQueue:           r.str("ACTIVITY_QUEUE", "board-activity"),

		SessionIdleTTL:     r.duration("SESSION_IDLE_TTL", time.Hour),
		IDStrategy:         r.str("ID_STRATEGY", domain.IDStrategySequential),
		ActivationDistance: r.float("DRAG_ACTIVATION_DISTANCE", domain.DefaultActivationDistance),

		PublishWorkers:        r.integer("PUBLISH_WORKERS", 4),
		PublishBuffer:         r.integer("PUBLISH_BUFFER", 1024),
		PublishTimeout:        r.duration("PUBLISH_TIMEOUT", 10*time.Second),
		PublishHandoffTimeout: r.duration("PUBLISH_HANDOFF_TIMEOUT", 15*time.Millisecond),

		Auth0Domain:           r.str("AUTH0_DOMAIN", ""),
		Auth0Audience:         r.str("AUTH0_AUDIENCE", ""),
		Auth0TestMode:         r.str("AUTH0_TEST_MODE", "") == "1",
		TestJWTSecret:         r.str("TEST_JWT_SECRET", ""),
		LocalAuthMode:         r.boolean("LOCAL_AUTH_MODE", false),
		LocalAuthSharedSecret: r.str("LOCAL_AUTH_SHARED_SECRET", ""),
		JWKSCacheTTL:          r.duration("JWKS_CACHE_TTL", time.Hour),
	}
	policy, err := domain.ParseOrphanPolicy(r.str("ORPHAN_POLICY", "keep"))
	if err != nil {
		r.fail("ORPHAN_POLICY", err)
	}
	cfg.OrphanPolicy = policy
	if _, err := domain.NewIDGenerator(cfg.IDStrategy, 0); err != nil {
		r.fail("ID_STRATEGY", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		r.fail("LOG_FORMAT", fmt.Errorf("want text or json, got %q", cfg.LogFormat))
	}
	if cfg.PublishWorkers <= 0 {
		r.fail("PUBLISH_WORKERS", fmt.Errorf("must be greater than zero"))
	}
	if cfg.PublishBuffer <= 0 {
		r.fail("PUBLISH_BUFFER", fmt.Errorf("must be greater than zero"))
	}
	if cfg.ActivationDistance < 0 {
		r.fail("DRAG_ACTIVATION_DISTANCE", fmt.Errorf("must not be negative"))
	}
	if !cfg.Auth0TestMode && !cfg.LocalAuthMode && (cfg.Auth0Domain == "" || cfg.Auth0Audience == "") {
		r.fail("AUTH0_DOMAIN", fmt.Errorf("missing Auth0 config"))
	}
	if cfg.LocalAuthMode && cfg.LocalAuthSharedSecret == "" {
		r.fail("LOCAL_AUTH_SHARED_SECRET", fmt.Errorf("required in local auth mode"))
	}
	if r.err != nil {
		return nil, r.err
	}
	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return ":" + c.Port }

// ConfigureLogger applies the level and formatter settings to l.
func (c *Config) ConfigureLogger(l *log.Logger) {
	if c.Debug {
		l.SetLevel(log.DebugLevel)
	}
	if c.LogFormat == "json" {
		l.SetFormatter(&log.JSONFormatter{})
	}
}

type reader struct {
	getenv func(string) string
	err    error
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *reader) str(key, def string) string {
	if v := strings.TrimSpace(r.getenv(key)); v != "" {
		return v
	}
	return def
}

func (r *reader) boolean(key string, def bool) bool {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return b
}

func (r *reader) integer(key string, def int) int {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return def
	}
	if d <= 0 {
		r.fail(key, fmt.Errorf("must be greater than zero"))
		return def
	}
	return d
}
