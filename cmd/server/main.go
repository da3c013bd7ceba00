package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quoteboard/internal/app"
	"quoteboard/internal/config"
	"quoteboard/internal/logger"
	"quoteboard/internal/metrics"
)

func main() {
	cfgPath := config.Path("")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	m := metrics.New(cfg.Metrics.Namespace)
	b, err := app.NewBoard(cfg, lg, m)
	if err != nil {
		lg.Fatal("build board", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b.Subscribe(fetchErrorLogger{log: lg})
	go b.Run(ctx)

	if cfgPath != "" {
		go func() {
			err := config.Watch(ctx, cfgPath, lg, func(next config.Config) {
				b.SetSymbols(next.Watchlist.Symbols)
				lg.Info("watch-list updated", zap.Strings("symbols", next.Watchlist.Symbols))
			})
			if err != nil {
				lg.Warn("config watch disabled", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(ctx, b, m, lg, cfg.RequestTimeout()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		lg.Info("server listening", zap.String("addr", srv.Addr), zap.String("provider", cfg.Provider.Name))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	b.Cancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	lg.Info("server stopped")
}
