// Package middleware adapts portalauth to net/http.
//
// # Guards
//
//   - [Guard] resolves the bearer access token through Engine.Authenticate and
//     stores the resulting principal in the request context.
//   - [RequireVerified] admits only principals with a verified email.
//   - [RateLimit] throttles a route per client IP.
//
// [RequestContext] and [Logging] are meant to wrap the whole router.
//
// This package translates HTTP semantics into engine calls. It does not parse
// tokens or touch the session registry itself.
package middleware
