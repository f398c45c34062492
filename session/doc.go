// Package session provides the Redis-backed session registry.
//
// # Key layout
//
// Each session lives under "session:<id>" as a JSON document with its own
// TTL. Every user has a sorted set "user_sessions:<userId>" whose members are
// session ids scored by creation time in milliseconds, so listing is always
// oldest first and re-adding a member never changes its position.
//
// # Architecture boundaries
//
// This package owns the [Store] and the [Session] model. It does NOT interpret
// JWT tokens or decide policy such as the session cap; callers pass the limit
// and lifetimes in.
package session
