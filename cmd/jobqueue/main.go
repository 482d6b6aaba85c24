// Command jobqueue runs a queue worker daemon: it drains pending jobs, fires
// scheduled tasks loaded from a YAML file and serves health and queue stats
// over HTTP.
//
// Without a subcommand it runs the daemon; "once" drains the queues and runs
// due tasks a single time; "tasks validate" checks a tasks file.
//
// Configuration comes from the environment (and a .env file when present):
// QUEUE_* selects the driver and the queues, LOG_* the logger, HTTP_* the
// monitoring server. Each driver reads its own variables (REDIS_URL,
// PG_CONN_URL, SQLITE_PATH, MONGODB_URL, S3_BUCKET, FILE_STORAGE_DIR).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/jobqueue/pkg/config"
	"github.com/dmitrymomot/jobqueue/pkg/httpserver"
	"github.com/dmitrymomot/jobqueue/pkg/logger"
	"github.com/dmitrymomot/jobqueue/pkg/queue"
)

type appConfig struct {
	Log   logger.Config
	Queue queue.Config
	HTTP  httpserver.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string, once bool) error {
	if _, err := os.Stat(envFile); err == nil {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
	}

	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		return err
	}

	log := logger.New(cfg.Log.Options()...)
	logger.SetAsDefault(log)

	b, err := openBackend(ctx, cfg.Queue.Driver, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.Error("close backend", logger.Error(err))
		}
	}()

	w, err := buildWorker(ctx, cfg.Queue, b, log)
	if err != nil {
		return err
	}

	if once {
		return runOnce(ctx, w, log)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(w.Process(gctx))
	if cfg.HTTP.Addr != "" {
		srv := httpserver.NewFromConfig(cfg.HTTP, httpserver.WithLogger(log))
		g.Go(func() error {
			return srv.Run(gctx, httpserver.NewRouter(w, log, b.checks...))
		})
	}

	log.InfoContext(ctx, "jobqueue started",
		logger.Driver(cfg.Queue.Driver),
		slog.Any("queues", w.Queues()),
	)
	return g.Wait()
}

// buildWorker creates one queue per configured name and registers the tasks
// file, if any.
func buildWorker(ctx context.Context, cfg queue.Config, b *backend, log *slog.Logger) (*queue.Worker, error) {
	if len(cfg.Queues) == 0 {
		return nil, errors.New("no queues configured")
	}
	qopts, err := cfg.QueueOptions()
	if err != nil {
		return nil, err
	}
	qopts = append(qopts, queue.WithQueueLogger(log))

	wopts := append(cfg.WorkerOptions(), queue.WithApp(builtinCommands()), queue.WithWorkerLogger(log))
	w := queue.NewWorker(wopts...)

	for _, name := range cfg.Queues {
		q, err := queue.NewQueue(name, b.adapter(name), qopts...)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", name, err)
		}
		if err := w.AddQueue(q); err != nil {
			return nil, err
		}
	}

	if cfg.TasksFile == "" {
		return w, nil
	}
	defs, err := loadTasksFile(cfg.TasksFile)
	if err != nil {
		return nil, err
	}
	if err := registerTasks(ctx, w, cfg.Queues[0], defs); err != nil {
		return nil, err
	}
	log.InfoContext(ctx, "tasks registered", slog.Int("count", len(defs)), slog.String("file", cfg.TasksFile))
	return w, nil
}

func runOnce(ctx context.Context, w *queue.Worker, log *slog.Logger) error {
	for {
		jobs, err := w.WorkAll(ctx)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			break
		}
	}
	results, err := w.RunAll(ctx)
	if err != nil {
		return err
	}
	for name, tasks := range results {
		log.InfoContext(ctx, "tasks run", logger.QueueName(name), slog.Int("count", len(tasks)))
	}
	return nil
}
