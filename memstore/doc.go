// Package memstore provides in-memory implementations of portalauth.UserStore
// and portalauth.TokenStore. They are meant for tests and single-process
// development setups; nothing survives a restart.
package memstore
