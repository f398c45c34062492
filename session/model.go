package session

import "time"

// Session is one login instance. SessionID is the key suffix and is not part
// of the stored document.
type Session struct {
	SessionID    string    `json:"-"`
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	RememberMe   bool      `json:"remember_me"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
}
