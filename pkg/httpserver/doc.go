// Package httpserver runs the HTTP side of a job queue worker: liveness and
// readiness checks plus read-mostly queue inspection endpoints routed with
// chi.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error {
//	    return srv.Run(ctx, httpserver.NewRouter(worker, log))
//	})
//
// Run blocks until ctx is canceled and then shuts the server down within the
// configured ShutdownTimeout.
package httpserver
