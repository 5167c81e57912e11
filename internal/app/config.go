package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/lotto-share/internal/domain/draw"
)

const defaultAddr = "0.0.0.0:8080"

// Session store backends.
const (
	SessionMemory   = "memory"
	SessionRedis    = "redis"
	SessionPostgres = "postgres"
)

// Config holds the complete application configuration, loadable from
// environment variables (LOTTO_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"Web server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (LOTTO_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	RedisURL    string `usage:"Redis connection URL (LOTTO_REDIS_URL or REDIS_URL)" flag:"redis-url"`
	Backend     BackendConfig
	Session     SessionConfig
	Purchase    PurchaseConfig
	Draw        DrawConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// BackendConfig points at the lottery backend API.
type BackendConfig struct {
	URL       string        `usage:"Lottery backend base URL" flag:"backend-url"`
	Timeout   time.Duration `default:"60s" usage:"Backend request timeout" flag:"backend-timeout"`
	RateLimit float64       `default:"50" usage:"Outbound requests per second, 0 disables" flag:"backend-rps"`
	Burst     int           `default:"20" usage:"Outbound request burst" flag:"backend-burst"`
}

// SessionConfig controls server side visitor sessions.
type SessionConfig struct {
	Store         string        `default:"memory" usage:"Session store: memory, redis or postgres" flag:"session-store"`
	TTL           time.Duration `default:"24h" usage:"Idle session lifetime" flag:"session-ttl"`
	CookieSecure  bool          `default:"false" usage:"Set the Secure attribute on the session cookie" flag:"cookie-secure"`
	SweepInterval time.Duration `default:"5m" usage:"Expired session cleanup interval" flag:"session-sweep"`
}

// PurchaseConfig controls order status polling after a payment redirect.
type PurchaseConfig struct {
	Interval         time.Duration `default:"3s" usage:"Order status poll interval" flag:"purchase-interval"`
	Grace            time.Duration `default:"10s" usage:"Wait before asking the gateway to reconcile" flag:"purchase-grace"`
	ReconcileOnEntry bool          `default:"true" usage:"Reconcile before the first poll" flag:"purchase-reconcile-on-entry"`
	MaxLifetime      time.Duration `default:"10m" usage:"Maximum duration of a single order watch" flag:"purchase-max-lifetime"`
	Retention        time.Duration `default:"15m" usage:"How long finished watches stay readable" flag:"purchase-retention"`
}

// DrawConfig is the weekly draw schedule.
type DrawConfig struct {
	Weekday  string `default:"Thursday" usage:"Draw weekday" flag:"draw-weekday"`
	Hour     int    `default:"21" usage:"Draw hour" flag:"draw-hour"`
	Minute   int    `default:"30" usage:"Draw minute" flag:"draw-minute"`
	Location string `default:"Asia/Kolkata" usage:"Draw time zone" flag:"draw-location"`
}

// Schedule parses the draw configuration.
func (c DrawConfig) Schedule() (draw.Schedule, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.Weekday) || strings.EqualFold(d.String()[:3], c.Weekday) {
			return draw.NewSchedule(d, c.Hour, c.Minute, c.Location)
		}
	}
	return draw.Schedule{}, errors.Errorf("unknown draw weekday %q", c.Weekday)
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (session cookie); requires explicit origins" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "LOTTO",
		Files:     []string{"config.yaml", "/etc/lotto/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.Backend.URL == "" {
		return errors.New("backend URL is required: set LOTTO_BACKEND_URL")
	}
	switch c.Session.Store {
	case SessionMemory:
	case SessionPostgres:
		if c.DatabaseURL == "" {
			return errors.New("postgres session store requires LOTTO_DATABASE_URL or DATABASE_URL")
		}
	case SessionRedis:
		if c.RedisURL == "" {
			return errors.New("redis session store requires LOTTO_REDIS_URL or REDIS_URL")
		}
	default:
		return errors.Errorf("unknown session store %q", c.Session.Store)
	}
	if _, err := c.Draw.Schedule(); err != nil {
		return errors.Wrap(err, "draw schedule")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's LOTTO_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.RedisURL == "" {
		c.RedisURL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
