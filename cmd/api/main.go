package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"libris.org/internal/auth"
	"libris.org/internal/config"
	"libris.org/internal/httpapi"
	"libris.org/internal/library"
	"libris.org/internal/notify"
	"libris.org/internal/obs"
	"libris.org/internal/ratelimit"
	"libris.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Postgres when a DSN is configured, in-process state otherwise. The
	// in-memory mode is for development and tests; a restart loses the ledger.
	var (
		db      *sql.DB
		lib     library.Service
		users   auth.UserStore
	)
	if cfg.PostgresDSN != "" {
		store, err := pg.Open(cfg.PostgresDSN,
			pg.WithLoanPeriod(cfg.LoanPeriod))
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		db = store.DB()
		lib = store
		users = auth.NewPGStore(db)
	} else {
		lib = library.NewInMemory(library.WithLoanPeriod(cfg.LoanPeriod))
		users = auth.NewMemoryStore()
		log.Println("no LIBRIS_PG_DSN set, using in-memory stores")
	}

	// Redis-backed admission window when available so limits hold across
	// replicas; single-process fallback otherwise.
	policy := ratelimit.Policy{Ceiling: cfg.RateCeiling, Window: cfg.RateWindow}
	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer client.Close()
		rl, err := ratelimit.NewRedisFixedWindow(client, policy)
		if err != nil {
			log.Fatalf("redis limiter: %v", err)
		}
		limiter = rl
	} else {
		fw := ratelimit.NewFixedWindow(policy)
		stopSweeper := fw.StartSweeper(time.Minute)
		defer stopSweeper()
		limiter = fw
	}

	dispatcher := notify.NewDispatcher(notify.LogSender{}, 256)
	defer dispatcher.Close()

	authority, err := auth.NewAuthority(users, cfg.AuthSecret,
		auth.WithSessionTTL(cfg.SessionTTL),
		auth.WithNotifier(dispatcher))
	if err != nil {
		log.Fatalf("auth: %v", err)
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, lib, authority, limiter, dispatcher)
	defer api.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting libris-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
