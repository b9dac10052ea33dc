// Package metrics tracks registry-cleaner run outcomes with Prometheus collectors
// and exports them in the node-exporter textfile format.
package metrics
