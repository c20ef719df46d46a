package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ceramicprofile/api/internal/app"
	"ceramicprofile/api/internal/config"
	"ceramicprofile/api/internal/identity"
	"ceramicprofile/api/internal/objectstore"
	"ceramicprofile/api/internal/profile"
	"ceramicprofile/api/internal/session"
	"ceramicprofile/api/internal/store"
	"ceramicprofile/api/internal/stream"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var db *sql.DB
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		defer db.Close()

		if err := store.ApplyMigrations(ctx, db, os.DirFS(cfg.MigrationsDir)); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	backend, err := openProfileBackend(ctx, cfg, db)
	if err != nil {
		log.Fatalf("profile backend failed: %v", err)
	}

	var sessions identity.SessionStore
	switch {
	case strings.TrimSpace(cfg.RedisURL) != "":
		log.Printf("Using Redis for identity sessions")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	case db != nil:
		log.Printf("Using PostgreSQL for identity sessions")
		sessions = store.NewPostgresStore(db)
	default:
		log.Printf("WARNING: no REDIS_URL or DATABASE_URL, identity sessions are kept in memory")
		sessions = identity.NewMemoryStore()
	}

	service := app.New(cfg, sessions, backend)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Ceramic profile API listening on %s (profiles: %s, chain %d)", cfg.Addr, cfg.ProfileBackend, cfg.RequiredChainID)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

func openProfileBackend(ctx context.Context, cfg config.Config, db *sql.DB) (profile.Backend, error) {
	switch cfg.ProfileBackend {
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("PROFILE_BACKEND=postgres requires DATABASE_URL")
		}
		return store.NewPostgresStore(db), nil
	case "git":
		if err := os.MkdirAll(cfg.StreamsDir, 0o755); err != nil {
			return nil, fmt.Errorf("create streams dir: %w", err)
		}
		return stream.New(cfg.StreamsDir), nil
	case "minio":
		objects, err := objectstore.New(objectstore.Options{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := objects.EnsureBucket(initCtx); err != nil {
			return nil, err
		}
		return objects, nil
	case "memory", "":
		log.Printf("WARNING: profiles are kept in memory and lost on restart")
		return profile.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown PROFILE_BACKEND %q (want postgres, git, minio or memory)", cfg.ProfileBackend)
	}
}
