// Package internal contains helpers that are private to portalauth, starting
// with secure random identifiers.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - housekeeping: cron-driven purge of expired verification tokens
//   - rate: Redis fixed-window counters for per-IP and per-user throttles
//   - serverconfig: YAML + environment configuration for cmd/portalauth
//
// # What this package must NOT do
//
//   - Export types that appear in the public portalauth API.
//   - Be imported by any package outside the portalauth module.
package internal
