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

	"github.com/cenkalti/backoff"
	"github.com/joho/godotenv"

	"github.com/abstimmung-app/backend/internal/broadcast"
	"github.com/abstimmung-app/backend/internal/config"
	"github.com/abstimmung-app/backend/internal/handler"
	"github.com/abstimmung-app/backend/internal/registry"
	"github.com/abstimmung-app/backend/internal/service/auth"
	"github.com/abstimmung-app/backend/internal/service/voting"
	"github.com/abstimmung-app/backend/internal/store"
	"github.com/abstimmung-app/backend/internal/store/tally"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	st := connectStore(cfg.Store)
	cache := connectTallyCache(cfg.Store)
	if cache != nil {
		defer cache.Close()
	}

	reg := registry.New()
	coordinator := broadcast.New(reg)

	authSvc := auth.NewService(st, cfg.Auth.BcryptCost)
	anonymous := resolveAnonymous(ctx, authSvc)
	log.Printf("anonymous sentinel user resolved, id=%s", anonymous)

	votingSvc := voting.NewService(st, cache, coordinator, anonymous)

	// Heartbeat sweep: unanswered pings get the connection closed, which
	// funnels it through the regular offline path of its read loop.
	go reg.Run(ctx, cfg.Ping.Interval, nil)

	router := handler.NewRouter(authSvc, votingSvc, reg)

	startServer(ctx, cfg.Server, router)
}

// connectStore opens the configured backend. Storage being unavailable at
// startup is the one condition worth waiting out, so MySQL connects retry
// with exponential backoff instead of aborting.
func connectStore(cfg config.StoreConfig) store.Store {
	if cfg.MySQLDSN == "" {
		log.Println("MYSQL_DSN not set, using in-memory store")
		return store.NewMemory()
	}

	var st *store.MySQL
	operation := func() error {
		var err error
		st, err = store.NewMySQL(cfg.MySQLDSN)
		if err != nil {
			log.Printf("mysql connect failed, retrying: %v", err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // keep retrying until the database shows up
	if err := backoff.Retry(operation, policy); err != nil {
		log.Fatalf("mysql connect failed permanently: %v", err)
	}

	log.Println("connected to MySQL")
	return st
}

func connectTallyCache(cfg config.StoreConfig) *tally.Cache {
	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not set, tally cache disabled")
		return nil
	}

	cache, err := tally.New(cfg.RedisURL)
	if err != nil {
		log.Printf("warning: tally cache unavailable, continuing without it: %v", err)
		return nil
	}

	log.Println("tally cache connected")
	return cache
}

func resolveAnonymous(ctx context.Context, authSvc *auth.Service) string {
	var id string
	operation := func() error {
		user, err := authSvc.EnsureAnonymous(ctx)
		if err != nil {
			log.Printf("resolving anonymous user failed, retrying: %v", err)
			return err
		}
		id = user.ID
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 2 * time.Minute
	if err := backoff.Retry(operation, policy); err != nil {
		log.Fatalf("failed to resolve anonymous user: %v", err)
	}
	return id
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voting backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
