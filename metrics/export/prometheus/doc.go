// Package prometheus exposes engine metrics through client_golang.
//
// [Collector] reads the engine snapshot on every scrape; register it with a
// prometheus.Registry or use [Handler] for a ready-made /metrics endpoint.
// Counters are named portalauth_*_total and the latency histograms
// portalauth_*_latency_seconds.
package prometheus
