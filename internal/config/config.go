package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type AppConfig struct {
	ListenAddr     string   `env:"LISTEN_ADDR" envDefault:":8080"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	AdminToken     string   `env:"ADMIN_TOKEN"`

	JWTSecret string `env:"JWT_SECRET"`
	JWTIssuer string `env:"JWT_ISSUER"`

	RedisURL    string `env:"REDIS_URL"`
	DatabaseURL string `env:"DATABASE_URL"`

	OutcomeWebhookURL     string        `env:"OUTCOME_WEBHOOK_URL"`
	OutcomeWebhookToken   string        `env:"OUTCOME_WEBHOOK_TOKEN"`
	OutcomeWebhookTimeout time.Duration `env:"OUTCOME_WEBHOOK_TIMEOUT" envDefault:"10s"`
	OutcomeWebhookRetries int           `env:"OUTCOME_WEBHOOK_RETRIES" envDefault:"3"`
	NATSURL               string        `env:"NATS_URL"`
	NATSSubject           string        `env:"NATS_SUBJECT" envDefault:"arena.outcomes"`

	TimeControlsDir     string        `env:"TIME_CONTROLS_DIR"`
	MessagesDir         string        `env:"MESSAGES_DIR"`
	DefaultRating       int           `env:"DEFAULT_RATING" envDefault:"1200"`
	RatingTolerance     int           `env:"RATING_TOLERANCE" envDefault:"200"`
	RatingLookupTimeout time.Duration `env:"RATING_LOOKUP_TIMEOUT" envDefault:"3s"`
	RatingCacheTTL      time.Duration `env:"RATING_CACHE_TTL" envDefault:"6h"`

	Log LogConfig
}

// LogConfig drives obslog.Init.
type LogConfig struct {
	Level     string `env:"LOG_LEVEL" envDefault:"info"`
	Format    string `env:"LOG_FORMAT" envDefault:"legacy"`
	ToConsole bool   `env:"LOG_TO_CONSOLE" envDefault:"true"`
	ToFile    bool   `env:"LOG_TO_FILE" envDefault:"false"`
	File      string `env:"LOG_FILE" envDefault:"logs/arena.log"`
	Caller    bool   `env:"LOG_CALLER" envDefault:"false"`
}

// Load reads an optional .env file (ENV_FILE overrides the path) and then the process environment.
func Load() (*AppConfig, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() error {
	c.JWTSecret = strings.TrimSpace(c.JWTSecret)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)
	c.OutcomeWebhookURL = strings.TrimSpace(c.OutcomeWebhookURL)
	c.OutcomeWebhookToken = strings.TrimSpace(c.OutcomeWebhookToken)
	c.NATSURL = strings.TrimSpace(c.NATSURL)

	origins := c.AllowedOrigins[:0]
	for _, o := range c.AllowedOrigins {
		if s := strings.TrimSpace(o); s != "" {
			origins = append(origins, s)
		}
	}
	c.AllowedOrigins = origins

	if c.DefaultRating <= 0 {
		c.DefaultRating = 1200
	}
	if c.RatingTolerance <= 0 {
		c.RatingTolerance = 200
	}
	if c.RatingLookupTimeout <= 0 {
		c.RatingLookupTimeout = 3 * time.Second
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	return nil
}
