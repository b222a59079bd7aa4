package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/redis/go-redis/v9"

	"github.com/Izume01/reliq/config"
	"github.com/Izume01/reliq/internal/crypto"
	"github.com/Izume01/reliq/internal/lifecycle"
	"github.com/Izume01/reliq/internal/store"
)

// app holds the wired stores and the lifecycle engine shared by every
// subcommand.
type app struct {
	cfg    *config.Config
	db     *store.DB
	meta   *store.SQLiteStore
	blobs  store.CiphertextStore
	cipher *crypto.Cipher
	svc    *lifecycle.Service
}

// loadConfig reads the config and installs the process logger. The returned
// context carries that logger.
func loadConfig(ctx context.Context) (context.Context, *config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return ctx, nil, fmt.Errorf("config error: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return ctx, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))

	return clog.WithLogger(ctx, clog.New(handler)), cfg, nil
}

func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := clog.FromContext(ctx)

	db, err := store.NewDB(ctx, cfg.Store.Metadata.Path)
	if err != nil {
		return nil, err
	}
	log.Info("database opened", "path", cfg.Store.Metadata.Path)

	if err := store.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	blobs, err := initCiphertextStore(cfg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("ciphertext store ready", "type", cfg.Store.Ciphertext.Type)

	c, err := crypto.NewCipher(cfg.Cipher.KeyHex)
	if err != nil {
		_ = blobs.Close()
		_ = db.Close()
		return nil, err
	}

	meta := store.NewSQLiteStore(db)
	svc := lifecycle.NewService(meta, blobs, crypto.NewPasswordGate(cfg.Secrets.BcryptCost), c, cfg.Policy())

	return &app{
		cfg:    cfg,
		db:     db,
		meta:   meta,
		blobs:  blobs,
		cipher: c,
		svc:    svc,
	}, nil
}

func (a *app) Close(ctx context.Context) {
	log := clog.FromContext(ctx)
	if err := a.blobs.Close(); err != nil {
		log.Error("error closing ciphertext store", "error", err)
	}
	if err := a.meta.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}

func initCiphertextStore(cfg *config.Config) (store.CiphertextStore, error) {
	switch cfg.Store.Ciphertext.Type {
	case "redis":
		st, err := store.NewRedisStore(&redis.Options{
			Addr:     cfg.Store.Ciphertext.Redis.Addr,
			Password: cfg.Store.Ciphertext.Redis.Password,
			DB:       cfg.Store.Ciphertext.Redis.DB,
		}, cfg.Store.Ciphertext.KeyPrefix)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		return st, nil
	default:
		return store.NewMemoryStore(30 * time.Second), nil
	}
}
