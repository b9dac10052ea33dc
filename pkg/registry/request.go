package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/nicholas-fedor/registry-cleaner/pkg/registry/transport"
)

// MaxRedirects bounds the redirect chain followed by a single operation.
const MaxRedirects = 5

// request sends a request and follows redirects that carry a Location header.
//
// The same method is re-issued at each location. Any other non-2xx response
// becomes a ProtocolError.
func (c *Client) request(
	ctx context.Context,
	method string,
	target string,
	header http.Header,
) (*transport.Response, error) {
	for hops := 0; ; hops++ {
		resp, err := c.session.Do(ctx, method, target, header)
		if err != nil {
			return nil, err
		}

		if resp.IsSuccess() {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if !resp.IsRedirect() || location == "" {
			return nil, newProtocolError(method, resp, nil)
		}

		if hops >= MaxRedirects {
			return nil, newProtocolError(method, resp, ErrTooManyRedirects)
		}

		next, err := resp.URL.Parse(location)
		if err != nil {
			return nil, newProtocolError(method, resp, fmt.Errorf("%w: %w", errInvalidLocation, err))
		}

		if next.Scheme != secureScheme {
			return nil, newProtocolError(method, resp, fmt.Errorf("%w: %s", ErrInsecureRedirect, next))
		}

		logrus.WithFields(logrus.Fields{
			"method": method,
			"from":   resp.URL.String(),
			"to":     next.String(),
			"status": resp.StatusCode,
		}).Info("Redirect detected")

		target = next.String()
	}
}

// getJSON fetches target and decodes a non-empty body into out.
func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	resp, err := c.request(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}

	if err := json.Unmarshal(resp.Body, out); err != nil {
		logrus.WithError(err).WithField("url", resp.URL.String()).Debug("Failed to decode registry response")

		return fmt.Errorf("%w: %s: %w", ErrInvalidResponse, resp.URL, err)
	}

	return nil
}
