// Package transport owns the TLS session between registry-cleaner and a registry.
//
// A Session is opened eagerly against one endpoint: the TCP dial and TLS
// handshake happen in Open, so an unreachable or untrusted registry is
// reported before any protocol operation runs. The established connection is
// then reused for every request/response pair. Requests are serialized and each
// response body is read to the end before Do returns, so the connection is
// always ready for the next exchange.
//
// The session timeout bounds the dial, the handshake, the wait for response
// headers and each read while a request is in flight. A slow body that keeps
// arriving is read to the end.
//
// Sessions never follow redirects and never retry; the registry package decides
// what a 3xx response means.
package transport
