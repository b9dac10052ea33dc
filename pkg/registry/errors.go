package registry

import (
	"errors"
	"fmt"
	"net/http"

	cerrdefs "github.com/containerd/errdefs"

	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/transport"
)

// Errors for registry operations.
var (
	// ErrInvalidConfig indicates a malformed registry URL, an unusable CA file or an invalid filter.
	ErrInvalidConfig = fmt.Errorf("invalid registry configuration: %w", cerrdefs.ErrInvalidArgument)
	// ErrConnection aliases the transport failure class so callers need not import transport.
	ErrConnection = transport.ErrConnection
	// ErrTooManyRedirects indicates a redirect chain longer than MaxRedirects.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrInsecureRedirect indicates a redirect to a location that is not https.
	ErrInsecureRedirect = errors.New("redirect to a non-https location refused")
	// ErrInvalidName indicates a repository name outside the distribution reference grammar.
	ErrInvalidName = fmt.Errorf("invalid repository name: %w", cerrdefs.ErrInvalidArgument)
	// ErrInvalidResponse indicates a successful response whose body is not the expected JSON.
	ErrInvalidResponse = errors.New("invalid registry response")
	// errInvalidLocation indicates a Location header that is not a valid URL reference.
	errInvalidLocation = errors.New("invalid redirect location")
)

// ProtocolError is returned for a non-2xx response that is not a followed redirect.
//
// It unwraps to the containerd errdefs class matching the status code, so
// callers can test it with cerrdefs.IsNotFound and friends.
type ProtocolError struct {
	Method     string // Request method.
	URL        string // Request URL.
	StatusCode int    // Response status code.
	Reason     string // Reason phrase, e.g. "Not Found".
	Err        error  // Optional cause, e.g. ErrTooManyRedirects.
}

// newProtocolError builds a ProtocolError from a response.
func newProtocolError(method string, resp *transport.Response, cause error) *ProtocolError {
	return &ProtocolError{
		Method:     method,
		URL:        resp.URL.String(),
		StatusCode: resp.StatusCode,
		Reason:     resp.Reason(),
		Err:        cause,
	}
}

// Error implements error.
func (e *ProtocolError) Error() string {
	message := fmt.Sprintf("%s %s: received HTTP code %d -> %s", e.Method, e.URL, e.StatusCode, e.Reason)
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}

	return message
}

// Unwrap exposes the cause and the errdefs class of the status code.
func (e *ProtocolError) Unwrap() []error {
	if e.Err == nil {
		return []error{statusClass(e.StatusCode)}
	}

	return []error{e.Err, statusClass(e.StatusCode)}
}

// statusClass maps an HTTP status code to a containerd errdefs class.
func statusClass(code int) error {
	switch {
	case code == http.StatusBadRequest:
		return cerrdefs.ErrInvalidArgument
	case code == http.StatusUnauthorized:
		return cerrdefs.ErrUnauthenticated
	case code == http.StatusForbidden:
		return cerrdefs.ErrPermissionDenied
	case code == http.StatusNotFound:
		return cerrdefs.ErrNotFound
	case code == http.StatusMethodNotAllowed:
		return cerrdefs.ErrNotImplemented
	case code == http.StatusConflict:
		return cerrdefs.ErrConflict
	case code == http.StatusTooManyRequests:
		return cerrdefs.ErrResourceExhausted
	case code >= http.StatusInternalServerError:
		return cerrdefs.ErrUnavailable
	default:
		return cerrdefs.ErrUnknown
	}
}
