package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manpreetbhatti/codetogether/internal/api"
	"github.com/manpreetbhatti/codetogether/internal/config"
	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/metrics"
	"github.com/manpreetbhatti/codetogether/internal/ratelimit"
	"github.com/manpreetbhatti/codetogether/internal/session"
	"github.com/manpreetbhatti/codetogether/internal/sweeper"
	"github.com/manpreetbhatti/codetogether/internal/ws"
)

const gracefulTimeout = 10 * time.Second

// run wires every component and blocks until ctx is cancelled or a signal
// arrives, then shuts down in dependency order.
func run(ctx context.Context, conf *config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := logging.SetLogLevel(conf.LogLevel); err != nil {
		return err
	}
	if err := logging.SetFormat(conf.LogFormat); err != nil {
		return err
	}
	log := logging.New("server")

	database, err := openDatabase(ctx, conf)
	if err != nil {
		return fmt.Errorf("open %s store: %w", conf.DBDriver, err)
	}
	defer func() {
		log.Info("closing room store")
		if err := database.Close(); err != nil {
			log.Warnf("close room store: %v", err)
		}
	}()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	manager := session.NewManager(database, session.Options{
		StoreTimeout:  conf.StoreTimeout,
		FlushOnEvict:  conf.FlushOnEvict,
		ReclaimColors: conf.ReclaimColors,
		Logger:        logging.New("session"),
		Metrics:       m,
	})

	sweep := sweeper.New(manager.Cache(), database, sweeper.Config{
		Interval:      conf.SweepInterval,
		IdleThreshold: conf.SweepIdleThreshold,
		StoreTimeout:  conf.StoreTimeout,
	}, sweeper.WithMetrics(m))
	sweep.Start()

	wsServer := ws.NewServer(manager, ws.Options{
		AllowedOrigins:    conf.Origins(),
		MessagesPerSecond: conf.MessagesPerSecond,
		MessageBurst:      conf.MessageBurst,
		MaxRateViolations: conf.MaxRateViolations,
	})

	limiters := ratelimit.NewClientLimiters(conf.APIRequestsPerSecond, conf.APIBurst)
	router := api.NewRouter(api.New(database, manager, limiters, logging.New("api")), wsServer, m.Handler())

	srv := &http.Server{
		Addr:              conf.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s (store: %s)", conf.Addr(), conf.DBDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("http shutdown: %v", err)
	}

	// Leaving clients may flush their rooms, so the sweeper's final pass and
	// the pending saves run after every connection is gone.
	wsServer.Close()
	sweep.Stop()
	manager.Wait()
	limiters.Stop()

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}
