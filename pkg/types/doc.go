// Package types defines the values and interfaces shared across registry-cleaner.
//
// Key components:
//   - Config: Immutable run configuration built once at startup.
//   - Endpoint, TrustConfig: Parsed registry location and TLS trust source.
//   - ImageRef: A repository and tag pair rendered as "repository:tag".
//   - RegistryClient: Operations the cleanup action performs against a registry.
//   - Report: Results of a cleanup run.
//   - Notifier: Interface for delivering run summaries.
package types
