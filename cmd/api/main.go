package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"slotbase.org/internal/audit"
	"slotbase.org/internal/auth"
	"slotbase.org/internal/httpapi"
	"slotbase.org/internal/obs"
	"slotbase.org/internal/throttle"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	codec, err := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  os.Getenv("JWT_ACCESS_SECRET"),
		RefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),
		AccessTTL:     envSeconds("JWT_ACCESS_TTL_SECONDS"),
		RefreshTTL:    envSeconds("JWT_REFRESH_TTL_SECONDS"),
	})
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	// Store selection: Postgres in production, SQLite for single-node
	// deployments, in-memory as the dev fallback.
	var (
		store auth.Store
		db    *sql.DB
	)
	switch {
	case os.Getenv("SLOTBASE_PG_DSN") != "":
		db, err = sql.Open("pgx", os.Getenv("SLOTBASE_PG_DSN"))
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	case os.Getenv("SLOTBASE_SQLITE_PATH") != "":
		lite, err := auth.OpenSQLite(os.Getenv("SLOTBASE_SQLITE_PATH"))
		if err != nil {
			log.Fatalf("open sqlite: %v", err)
		}
		defer lite.Close()
		store = lite
	default:
		log.Println("no SLOTBASE_PG_DSN or SLOTBASE_SQLITE_PATH set, using in-memory store")
		store = auth.NewMemStore()
	}

	recorder := audit.NewRecorder(store.Audit(context.Background()))
	defer recorder.Close()

	svc, err := auth.NewService(store, codec, auth.WithAuditor(recorder))
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	var limiter *throttle.Limiter
	if addr := os.Getenv("SLOTBASE_REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		limiter = throttle.New(rdb, 10, time.Minute)
		defer rdb.Close()
	}

	api := httpapi.New(httpapi.Config{
		Auth:          svc,
		Codec:         codec,
		Throttle:      limiter,
		Ready:         httpapi.ReadyProbe{DB: db},
		Version:       version,
		SecureCookies: os.Getenv("SLOTBASE_ENV") == "production",
	})

	srv := &http.Server{
		Addr:              listenAddr(),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting slotbase-api %s on %s", version, srv.Addr)

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

func listenAddr() string {
	if addr := os.Getenv("SLOTBASE_LISTEN_ADDR"); addr != "" {
		return addr
	}
	return ":8080"
}

func envSeconds(name string) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		log.Fatalf("%s: expected positive integer seconds, got %q", name, raw)
	}
	return time.Duration(secs) * time.Second
}
