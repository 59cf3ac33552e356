package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (EKA_ prefix), flags, or YAML config files.
type Config struct {
	Addr          string        `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL   string        `usage:"PostgreSQL connection URL (EKA_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	// CouponRefresh is how often the coupon code filter is reloaded.
	CouponRefresh time.Duration `default:"5m" usage:"Coupon code filter reload interval" flag:"coupon-refresh"`
	Razorpay      RazorpayConfig
	JWT           JWTConfig
	Redis         RedisConfig
	RateLimit     RateLimitConfig
	LoginLimit    LoginLimitConfig
	CORS          CORSConfig
	Graceful      GracefulConfig
}

// RazorpayConfig holds payment gateway credentials.
type RazorpayConfig struct {
	KeyID         string        `usage:"Razorpay key id" flag:"razorpay-key-id"`
	KeySecret     string        `usage:"Razorpay key secret, signs checkout callbacks" flag:"razorpay-key-secret"`
	WebhookSecret string        `usage:"Razorpay webhook secret; webhooks are rejected when empty" flag:"razorpay-webhook-secret"`
	BaseURL       string        `default:"https://api.razorpay.com" usage:"Razorpay API base URL"`
	Currency      string        `default:"INR" usage:"Order currency"`
	Timeout       time.Duration `default:"10s" usage:"Razorpay request timeout"`
}

// JWTConfig controls admin token issuance.
type JWTConfig struct {
	Secret string        `usage:"HMAC secret for admin tokens (EKA_JWT_SECRET)" flag:"jwt-secret"`
	TTL    time.Duration `default:"24h" usage:"Admin token lifetime" flag:"jwt-ttl"`
}

// RedisConfig enables the active coupon cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address; caching is disabled when empty" flag:"redis-addr"`
	Password string        `usage:"Redis password" flag:"redis-password"`
	DB       int           `default:"0" usage:"Redis database"`
	Prefix   string        `default:"eka" usage:"Redis key prefix"`
	TTL      time.Duration `default:"5m" usage:"Active coupon cache TTL"`
}

// RateLimitConfig controls a per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// LoginLimitConfig throttles admin login attempts per client.
type LoginLimitConfig struct {
	Max    int           `default:"5"   usage:"Max login attempts per window" flag:"login-limit-max"`
	Window time.Duration `default:"15m" usage:"Login attempt window" flag:"login-limit-window"`
	// TrustedProxyHops is the number of proxies in front of the server whose
	// X-Forwarded-For entries are trusted. Zero keys on the peer address.
	TrustedProxyHops int `default:"0" usage:"Trusted X-Forwarded-For hops for the login limit" flag:"login-limit-proxy-hops"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
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
		EnvPrefix: "EKA",
		Files:     []string{"config.yaml", "/etc/eka/config.yaml"},
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

// Validate reports the first missing required setting.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set EKA_DATABASE_URL or DATABASE_URL")
	case c.Razorpay.KeyID == "" || c.Razorpay.KeySecret == "":
		return errors.New("razorpay credentials are required: set EKA_RAZORPAY_KEY_ID and EKA_RAZORPAY_KEY_SECRET")
	case len(c.JWT.Secret) < 32:
		return errors.New("JWT secret must be at least 32 bytes: set EKA_JWT_SECRET")
	case c.JWT.TTL <= 0:
		return errors.New("JWT TTL must be positive")
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's EKA_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
