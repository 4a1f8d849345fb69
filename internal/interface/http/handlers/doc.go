// Package handlers contains the health checks and reusable middleware of the
// predictor's HTTP interface.
//
// # Health Checks
//
// Named checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewCompositeHealthChecker("0.1.0")
//	checker.AddCheck("database", handlers.NewPingCheck(conn))
//	checker.AddCheck("cache", handlers.NewPingCheck(cache))
//	checker.AddCheck("model", handlers.NewModelCheck(bundle.Version))
//
//	status := checker.Check(ctx)
//	if !status.Healthy {
//	    log.Printf("health check failed: %s", status.Message)
//	}
//
// Optional dependencies (Redis, Postgres) should be registered as non-critical
// with AddOptionalCheck: their failure is reported but keeps the service ready.
//
// # Middleware
//
//	h := handlers.ChainHandler(mux,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	    handlers.TimeoutMiddleware(30*time.Second),
//	)
package handlers
