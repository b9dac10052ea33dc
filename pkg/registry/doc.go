// Package registry implements the registry HTTP API v2 operations used by registry-cleaner.
//
// Key components:
//   - Client: Lists repositories and tags, resolves tags to digests and deletes manifests.
//   - ProtocolError: Non-2xx responses, classified with containerd errdefs.
//   - transport: Owns the single TLS session a Client talks through.
//   - manifest: API paths and negotiated manifest media types.
//   - digest: Docker-Content-Digest extraction.
//   - helpers: "repository:tag" reference splitting and rendering.
//
// Usage example:
//
//	client, err := registry.New(ctx, "https://registry.example.com", "", 3*time.Second)
//	if err != nil {
//	    logrus.WithError(err).Fatal("Failed to connect to registry")
//	}
//	defer client.Close()
//	repositories, err := client.ListRepositories(ctx, 1000, "^team/")
//
// Listing errors are returned to the caller. Digest lookups and deletions fold
// protocol failures into their return values, since a tag that cannot be
// resolved or deleted is an expected per-item outcome.
package registry
