package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// readHeaderTimeout is the timeout for reading request headers.
const readHeaderTimeout = 10 * time.Second

// shutdownTimeout is the timeout for graceful server shutdown.
const shutdownTimeout = 5 * time.Second

// errEmptyToken indicates an attempt to start the API without a token.
var errEmptyToken = errors.New("API token is empty or unset")

// API is the token-protected HTTP API of registry-cleaner.
type API struct {
	Addr       string
	token      string
	registered bool
	mux        *http.ServeMux
	server     HTTPServer // Injected in tests.
}

// HTTPServer is the part of http.Server the API drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// New creates an API bound to addr.
// The optional server replaces the http.Server built by Start.
func New(token, addr string, server ...HTTPServer) *API {
	api := &API{
		Addr:  addr,
		token: token,
		mux:   http.NewServeMux(),
	}

	if len(server) > 0 {
		api.server = server[0]
	}

	logrus.WithField("addr", addr).Debug("Initialized new API instance")

	return api
}

// RegisterFunc registers a handler function for path.
func (a *API) RegisterFunc(path string, handler func(http.ResponseWriter, *http.Request)) {
	a.mux.HandleFunc(path, handler)
	a.registered = true
}

// RegisterHandler registers a handler for path.
func (a *API) RegisterHandler(path string, handler http.Handler) {
	a.mux.Handle(path, handler)
	a.registered = true
}

// Handler returns the routed handlers behind token authentication.
func (a *API) Handler() http.Handler {
	return a.authMiddleware(a.mux)
}

// Start serves the API until ctx is done.
//
// Parameters:
//   - ctx: Stops the server when done.
//   - blocking: Serve in the foreground and return on shutdown; otherwise serve in the background.
//
// Returns:
//   - error: errEmptyToken without a token, or the server error in blocking mode.
func (a *API) Start(ctx context.Context, blocking bool) error {
	if !a.registered {
		logrus.Info("No handlers registered, skipping API start")

		return nil
	}

	if a.token == "" {
		return errEmptyToken
	}

	server := a.server
	if server == nil {
		server = &http.Server{
			Addr:              a.Addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(_ net.Listener) context.Context { return ctx },
		}
	}

	logrus.WithField("addr", a.Addr).Info("Starting HTTP API server")

	if blocking {
		return RunHTTPServer(ctx, server)
	}

	go func() {
		if err := RunHTTPServer(ctx, server); err != nil {
			logrus.WithError(err).Error("HTTP server failed")
		}
	}()

	return nil
}

// RequireToken wraps a handler function with bearer token authentication.
func (a *API) RequireToken(handler func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return a.authMiddleware(http.HandlerFunc(handler)).ServeHTTP
}

// authMiddleware rejects requests without the API token with 401.
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")

		token, found := strings.CutPrefix(auth, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			logrus.WithField("path", r.URL.Path).Debug("Rejected unauthenticated API request")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

// RunHTTPServer serves until the server fails or ctx is done, then shuts it down.
func RunHTTPServer(ctx context.Context, server HTTPServer) error {
	errChan := make(chan error, 1)

	go func() {
		errChan <- server.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		return nil
	}
}
