package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"rentflow/app"
	"rentflow/config"
	"rentflow/db"
	"rentflow/journal"
	"rentflow/logging"
	"rentflow/notify"
	"rentflow/session"
)

// env is what every command runs against. It is opened lazily so that
// commands like sandbox never touch the session store.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	app    *app.App

	closers []func()
}

func openEnv(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "rentctl")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	e := &env{cfg: cfg, logger: logger}
	e.closers = append(e.closers, func() { _ = logger.Sync() })

	opts := app.Options{
		BaseURL:    cfg.API.BaseURL,
		Timeout:    cfg.API.Timeout,
		RetryCount: cfg.API.RetryCount,
		Location:   cfg.Location(),
		Logger:     logger,
	}

	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, pool.Close)
		applied, err := db.Migrate(ctx, pool)
		if err != nil {
			e.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("client schema migrated", zap.Strings("applied", applied))
		}
		opts.Journal = journal.NewPG(pool, nil)
		if cfg.Session.Store == config.StorePostgres {
			opts.Store = session.NewPGStore(pool, "default")
		}
	} else if cfg.Session.Store == config.StorePostgres {
		e.Close()
		return nil, fmt.Errorf("session store postgres requires DATABASE_URL")
	}

	switch cfg.Session.Store {
	case config.StoreFile:
		opts.Store = session.NewFileStore(cfg.Session.File)
	case config.StoreMemory:
		opts.Store = session.NewMemoryStore()
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			e.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		e.closers = append(e.closers, func() { _ = client.Close() })
		opts.Store = session.NewRedisStore(client, "rentflow:", 0)
	}

	e.app = app.New(opts)
	if _, err := e.app.Session.Restore(ctx); err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// nudges connects to the MQTT broker when one is configured. A nil channel
// means polling only.
func (e *env) nudges() <-chan string {
	if e.cfg.MQTT.Broker == "" {
		return nil
	}
	client, err := notify.Connect(e.cfg.MQTT, e.logger.Named("mqtt"))
	if err != nil {
		e.logger.Warn("payment nudges unavailable", zap.Error(err))
		return nil
	}
	e.closers = append(e.closers, client.Close)
	ch, err := client.Nudges()
	if err != nil {
		e.logger.Warn("payment nudges unavailable", zap.Error(err))
		return nil
	}
	return ch
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}
