package portalauth

import "time"

// SetClock replaces the engine clock everywhere it is read.
func SetClock(e *Engine, now func() time.Time) {
	e.now = now
	e.users.now = now
	e.tokens.now = now
}

// TOTPCode returns the code the engine expects for secret at t.
func TOTPCode(e *Engine, secret string, at time.Time) (string, error) {
	return e.totp.codeAt(secret, at)
}
