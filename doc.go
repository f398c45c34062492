// Package portalauth implements account authentication and session
// lifecycle for a web backend: registration, email verification, password
// login with lockout, optional TOTP second factor, JWT access/refresh pairs
// bound to Redis sessions, password reset, and logout.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Collaborators
//
// The engine persists users and single-use verification tokens through the
// [UserStore] and [TokenStore] interfaces (see the pgstore and memstore
// packages), keeps sessions in Redis, and sends mail through a [Mailer].
// Every store, registry and mailer call is bounded by
// Config.Dependencies.Timeout; failures surface as [ErrDependencyTimeout] or
// [ErrDependencyUnavailable], never as business errors.
//
// # Sessions
//
// A session is the unit of revocation. Access and refresh tokens both carry
// the session id, so removing the session invalidates them before they
// expire. Each user holds at most Config.Session.MaxSessionsPerUser
// sessions; opening one more evicts the oldest.
//
// # What this package must NOT do
//
//   - Return password hashes or TOTP secrets from any public method; use
//     [PublicProfile].
//   - Distinguish unknown emails from wrong passwords in login errors.
//   - Speak HTTP. The httpapi and middleware packages own transport.
package portalauth
