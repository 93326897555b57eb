package arenabuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/clock"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/dispatch"
	"github.com/park285/cheese-arena/internal/matchmaking"
	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/outcome"
	"github.com/park285/cheese-arena/internal/presence"
	"github.com/park285/cheese-arena/internal/ratings"
	"github.com/park285/cheese-arena/internal/session"
	"github.com/park285/cheese-arena/internal/timecontrol"
	"github.com/park285/cheese-arena/internal/transport/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Verifier   *auth.Verifier
	Handler    http.Handler

	closers []func() error
}

// Close releases external clients in reverse open order.
func (d *Deps) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// New wires the arena from config. Postgres, Redis, the webhook and NATS are
// all optional; without a rating source every player sits at the default rating.
// connCtx bounds every websocket connection the handler accepts.
func New(ctx, connCtx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	deps := &Deps{}
	fail := func(err error) (*Deps, error) {
		_ = deps.Close()
		return nil, err
	}

	catalog, err := timecontrol.New(cfg.TimeControlsDir)
	if err != nil {
		return fail(fmt.Errorf("load time controls: %w", err))
	}

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fail(fmt.Errorf("load messages: %w", err))
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return fail(fmt.Errorf("init verifier: %w", err))
	}
	deps.Verifier = verifier

	// Repository (optional)
	var (
		db     *sql.DB
		lookup presence.RatingLookup
		sinks  outcome.Multi
	)
	if cfg.DatabaseURL != "" {
		db, err = ratings.OpenDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, db.Close)

		store := ratings.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		lookup = store

		pg := outcome.NewPostgresSink(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return fail(err)
		}
		sinks = append(sinks, pg)
	}

	// Cache (optional)
	if cfg.RedisURL != "" {
		opts, err := ratings.ParseRedisURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		rdb := redis.NewClient(opts)
		deps.closers = append(deps.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("ping redis: %w", err))
		}
		cache := ratings.NewRedisCache(rdb, lookup, cfg.RatingCacheTTL)
		lookup = cache
		sinks = append(sinks, cache)
	}

	if cfg.OutcomeWebhookURL != "" {
		sinks = append(sinks, newWebhookSink(cfg))
	}
	if cfg.NATSURL != "" {
		nc, err := outcome.ConnectNATS(cfg.NATSURL)
		if err != nil {
			return fail(err)
		}
		deps.closers = append(deps.closers, func() error {
			return nc.Drain()
		})
		sinks = append(sinks, outcome.NewNATSSink(nc, cfg.NATSSubject))
	}

	clk := clockwork.NewRealClock()
	store := session.NewStore(clock.NewEngine(clk), clk)
	registry := presence.NewRegistry(lookup, cfg.DefaultRating)
	queue := matchmaking.NewQueue(store, registry,
		matchmaking.WithClock(clk),
		matchmaking.WithTolerance(cfg.RatingTolerance),
	)

	var sink outcome.Sink
	if len(sinks) > 0 {
		sink = sinks
	}
	d, err := dispatch.New(dispatch.Deps{
		Catalog:       catalog,
		Store:         store,
		Presence:      registry,
		Queue:         queue,
		Sink:          sink,
		Clock:         clk,
		Messages:      messages,
		LookupTimeout: cfg.RatingLookupTimeout,
	})
	if err != nil {
		return fail(err)
	}
	deps.Dispatcher = d

	deps.Handler = ws.NewRouter(ws.RouterConfig{
		Verifier:       verifier,
		Dispatcher:     d,
		AllowedOrigins: cfg.AllowedOrigins,
		AdminToken:     cfg.AdminToken,
		Handler:        ws.HandlerConfig{BaseContext: connCtx},
	})

	obslog.L().Info("arena_built",
		zap.Strings("time_controls", catalog.Names()),
		zap.Bool("postgres", db != nil),
		zap.Bool("redis", cfg.RedisURL != ""),
		zap.Strings("sinks", sinkNames(sinks)),
		zap.Int("rating_tolerance", cfg.RatingTolerance),
	)
	return deps, nil
}

func newWebhookSink(cfg *config.AppConfig) *outcome.WebhookSink {
	opts := []outcome.WebhookOption{
		outcome.WithWebhookTimeout(cfg.OutcomeWebhookTimeout),
		outcome.WithWebhookRetry(cfg.OutcomeWebhookRetries),
	}
	if cfg.OutcomeWebhookToken != "" {
		opts = append(opts, outcome.WithWebhookHeader("Authorization", "Bearer "+cfg.OutcomeWebhookToken))
	}
	return outcome.NewWebhookSink(cfg.OutcomeWebhookURL, opts...)
}

func sinkNames(m outcome.Multi) []string {
	names := make([]string, 0, len(m))
	for _, s := range m {
		names = append(names, s.Name())
	}
	return names
}

// RedactURL hides credentials for logging.
func RedactURL(raw string) string {
	if i := strings.Index(raw, "@"); i >= 0 {
		if j := strings.Index(raw, "://"); j >= 0 && j < i {
			return raw[:j+3] + "***" + raw[i:]
		}
	}
	return raw
}
