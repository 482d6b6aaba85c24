package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/dmitrymomot/jobqueue/pkg/config"
	"github.com/dmitrymomot/jobqueue/pkg/file"
	"github.com/dmitrymomot/jobqueue/pkg/httpserver"
	"github.com/dmitrymomot/jobqueue/pkg/logger"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
	"github.com/dmitrymomot/jobqueue/pkg/queue/filestore"
	"github.com/dmitrymomot/jobqueue/pkg/queue/mongostore"
	"github.com/dmitrymomot/jobqueue/pkg/queue/redisstore"
	"github.com/dmitrymomot/jobqueue/pkg/queue/sqlstore"
)

var errUnknownDriver = errors.New("unknown queue driver")

// localFileConfig configures the "file" driver.
type localFileConfig struct {
	Dir string `env:"FILE_STORAGE_DIR" envDefault:"data/queues"`
}

// backend hands out one adapter per queue name over a shared connection.
type backend struct {
	adapter func(name string) queue.Adapter
	checks  []httpserver.Check
	closers []func() error
}

func (b *backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func openBackend(ctx context.Context, driver string, log *slog.Logger) (*backend, error) {
	log = log.With(logger.Driver(driver))

	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "memory":
		return &backend{adapter: func(string) queue.Adapter { return queue.NewMemoryAdapter() }}, nil

	case "file":
		var cfg localFileConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		storage, err := file.NewLocalStorage(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return fileBackend(storage), nil

	case "s3":
		var cfg file.S3Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		storage, err := file.NewS3Storage(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return fileBackend(storage), nil

	case "redis":
		var cfg redisstore.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := redisstore.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &backend{
			adapter: func(name string) queue.Adapter {
				return redisstore.New(client, name, redisstore.WithKeyPrefix(cfg.KeyPrefix))
			},
			checks:  []httpserver.Check{{Name: "redis", Fn: redisstore.Healthcheck(client)}},
			closers: []func() error{client.Close},
		}, nil

	case "postgres", "postgresql", "pg":
		var cfg sqlstore.PostgresConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		store, err := sqlstore.OpenPostgres(ctx, cfg, sqlstore.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return sqlBackend(ctx, store)

	case "sqlite":
		var cfg sqlstore.SQLiteConfig
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		store, err := sqlstore.OpenSQLite(ctx, cfg, sqlstore.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return sqlBackend(ctx, store)

	case "mongo", "mongodb":
		var cfg mongostore.Config
		if err := config.Load(&cfg); err != nil {
			return nil, err
		}
		client, err := mongostore.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.Database)
		if err := mongostore.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.WithoutCancel(ctx))
			return nil, err
		}
		return &backend{
			adapter: func(name string) queue.Adapter { return mongostore.New(db, name) },
			checks:  []httpserver.Check{{Name: "mongodb", Fn: mongostore.Healthcheck(client)}},
			closers: []func() error{func() error { return client.Disconnect(context.Background()) }},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownDriver, driver)
}

// fileBackend keeps each queue in its own JSON document.
func fileBackend(storage file.Storage) *backend {
	return &backend{
		adapter: func(name string) queue.Adapter {
			return filestore.New(storage, path.Join("queues", name+".json"))
		},
	}
}

func sqlBackend(ctx context.Context, store *sqlstore.Store) (*backend, error) {
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return &backend{
		adapter: func(name string) queue.Adapter { return store.Queue(name) },
		checks:  []httpserver.Check{{Name: string(store.Dialect()), Fn: store.Healthcheck}},
		closers: []func() error{store.Close},
	}, nil
}
