// Package otel exports engine metrics as OpenTelemetry observable
// instruments.
//
// Counters become Int64ObservableCounters. Each latency histogram is exposed
// as one cumulative gauge per bucket plus a count gauge, since the engine
// keeps bucket counts rather than raw samples.
package otel
