// Package logger builds *slog.Logger instances for the job queue services
// and provides attribute helpers that keep key names consistent.
//
// New creates a logger from Option functions. The concrete handler is a
// slog text or JSON handler, wrapped in LogHandlerDecorator so that any
// registered ContextExtractor injects attributes from the record's context.
//
// # Usage
//
//	import "github.com/dmitrymomot/jobqueue/pkg/logger"
//
//	log := logger.New(
//	    logger.WithEnvironment(logger.EnvProduction, "jobqueue"),
//	    logger.WithContextValue("worker_id", ctxKeyWorker),
//	)
//	logger.SetAsDefault(log)
//
//	log.InfoContext(ctx, "job completed",
//	    logger.QueueName("emails"),
//	    logger.JobID(job.ID),
//	    logger.Duration(time.Since(start)),
//	)
//
// # Configuration
//
// Config carries LOG_LEVEL, LOG_FORMAT, APP_ENV and SERVICE_NAME and turns
// them into options with Config.Options. WithFormat panics on unknown formats.
//
// # Error Handling
//
// Error and Errors return an empty attribute when every error is nil, so they
// can be passed unconditionally:
//
//	log.Info("queue drained", logger.Error(err))
package logger
