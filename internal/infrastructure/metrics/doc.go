// Package metrics exposes tracking loop counters to Prometheus.
//
// A Metrics value is registered as a frame observer on the tracking
// handler and served at /metrics by the API server.
package metrics
