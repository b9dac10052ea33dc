// Package api wires the cleanup and metrics endpoints into the HTTP API of registry-cleaner.
package api

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/api"
	"github.com/nicholas-fedor/registry-cleaner/pkg/api/cleanup"
	metricsAPI "github.com/nicholas-fedor/registry-cleaner/pkg/api/metrics"
	"github.com/nicholas-fedor/registry-cleaner/pkg/types"
)

// GetAPIAddr formats the API address string based on host and port.
func GetAPIAddr(host, port string) string {
	address := host + ":" + port
	if host != "" && strings.Contains(host, ":") && net.ParseIP(host) != nil {
		address = "[" + host + "]:" + port
	}

	return address
}

// SetupAndStartAPI registers the enabled endpoints and starts the API in the background.
//
// Parameters:
//   - ctx: Stops the API when done.
//   - cfg: Run configuration holding the API settings.
//   - lock: Lock shared with the scheduler so API and scheduled cleanups never overlap.
//   - runFn: Runs one cleanup.
//   - gatherer: Source of the metrics endpoint.
//   - server: Optional server replacing the http.Server, for tests.
//
// Returns:
//   - *api.API: The configured API, nil when no endpoint is enabled.
//   - error: Non-nil if the API cannot start.
func SetupAndStartAPI(
	ctx context.Context,
	cfg types.Config,
	lock chan bool,
	runFn cleanup.RunFunc,
	gatherer prometheus.Gatherer,
	server ...api.HTTPServer,
) (*api.API, error) {
	if !cfg.APICleanup && !cfg.APIMetrics {
		return nil, nil //nolint:nilnil // No endpoint enabled.
	}

	httpAPI := api.New(cfg.APIToken, GetAPIAddr(cfg.APIHost, cfg.APIPort), server...)

	if cfg.APICleanup {
		handler := cleanup.New(runFn, lock)
		httpAPI.RegisterFunc(handler.Path, handler.Handle)

		logrus.WithField("path", handler.Path).Info("The HTTP API cleanup endpoint is enabled")
	}

	if cfg.APIMetrics {
		handler := metricsAPI.New(gatherer)
		httpAPI.RegisterHandler(handler.Path, handler.Handle)

		logrus.WithField("path", handler.Path).Info("The HTTP API metrics endpoint is enabled")
	}

	if err := httpAPI.Start(ctx, false); err != nil {
		return nil, fmt.Errorf("failed to start HTTP API: %w", err)
	}

	return httpAPI, nil
}
