// Package api provides the HTTP server for registry-cleaner's API endpoints.
// Every request must carry the configured bearer token.
//
// Key components:
//   - API: Manages server setup, endpoint registration and token checks.
//   - RunHTTPServer: Serves until the context is done, then shuts down gracefully.
//
// Usage example:
//
//	api := api.New("secure-token", ":8080")
//	api.RegisterHandler("/v1/metrics", handler)
//	if err := api.Start(ctx, true); err != nil {
//	    logrus.WithError(err).Error("API start failed")
//	}
package api
