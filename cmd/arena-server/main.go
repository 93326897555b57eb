package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/cheese-arena/internal/arenabuilder"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger, err := obslog.Init(cfg.Log)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connCtx, closeConns := context.WithCancel(context.Background())
	defer closeConns()
	deps, err := arenabuilder.New(ctx, connCtx, cfg)
	if err != nil {
		logger.Fatal("arena_init_failed", zap.Error(err))
	}
	logger.Info("arena_config",
		zap.String("listen", cfg.ListenAddr),
		zap.String("database", arenabuilder.RedactURL(cfg.DatabaseURL)),
		zap.String("redis", arenabuilder.RedactURL(cfg.RedisURL)),
		zap.String("nats", arenabuilder.RedactURL(cfg.NATSURL)),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
	)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		deps.Dispatcher.Run(loopCtx)
		close(loopDone)
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           deps.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http_listen", zap.String("addr", cfg.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http_serve_failed", zap.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Shutdown does not track hijacked websockets. The loop stops before they
	// are closed so their disconnects do not complete live sessions.
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("http_shutdown_failed", zap.Error(err))
	}
	stopLoop()
	<-loopDone
	closeConns()
	deps.Dispatcher.Wait()
	if err := deps.Close(); err != nil {
		logger.Warn("arena_close_failed", zap.Error(err))
	}
	logger.Info("arena_stopped")
}
