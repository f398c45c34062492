// Package rate provides Redis-backed fixed-window counters for throttling.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// "rl:<rule>:<subject>", where the subject is a client IP for endpoint
// throttles or a user id for the TOTP failure throttle.
//
// # What this package must NOT do
//
//   - Decide which rule applies to which request (callers pass a [Rule]).
//   - Be imported outside the portalauth module.
package rate
