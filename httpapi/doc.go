// Package httpapi exposes the portalauth engine as a JSON API under /auth.
//
// Every response uses the envelope
//
//	{"success": bool, "message": string, "data": {...}, "errors": [...]}
//
// Requests are validated here before they reach the engine; engine errors
// are translated to status codes by a single table so no internal error text
// ever reaches a client.
package httpapi
