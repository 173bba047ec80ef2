// Package handlers holds the reusable pieces of the HTTP interface: health
// checks and middleware.
//
// Checks run concurrently under a per-check timeout. Optional dependencies
// only degrade the status:
//
//	checker := handlers.NewCompositeHealthChecker(version)
//	checker.AddCheck("postgres", handlers.NewPingCheck(conn))
//	checker.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
//
// The back office is guarded by an API key:
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", keys)
//	admin := handlers.ChainHandler(mux, handlers.NoCacheMiddleware, auth.Middleware)
package handlers
