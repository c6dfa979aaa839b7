// Package handlers contains the reusable pieces of the HTTP interface:
// composite health checks and middleware.
//
// Health checks are registered by name and run in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("storage", handlers.NewPingCheck(repo))
//	checker.AddCheck("redis", handlers.NewPingCheck(cache))
//
//	status := checker.Check(ctx)
//
// API keys are configured as bcrypt hashes, never in plain text:
//
//	auth := handlers.NewAPIKeyAuth(handlers.APIKeyHeader, hashes)
//	mux.Handle("POST /api/v1/...", auth.Middleware(h))
package handlers
