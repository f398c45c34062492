package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/portalauth"
)

// Tokens is a concurrency-safe in-memory portalauth.TokenStore.
type Tokens struct {
	mu      sync.Mutex
	byID    map[string]*portalauth.VerificationToken
	byValue map[string]string
}

func NewTokens() *Tokens {
	return &Tokens{
		byID:    make(map[string]*portalauth.VerificationToken),
		byValue: make(map[string]string),
	}
}

// IssueToken marks the user's unused tokens of the same type as used and
// stores tok, under one lock.
func (s *Tokens) IssueToken(ctx context.Context, tok portalauth.VerificationToken) (*portalauth.VerificationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if existing.UserID == tok.UserID && existing.Type == tok.Type && !existing.Used {
			existing.Used = true
		}
	}

	stored := tok
	stored.Used = false
	s.byID[stored.ID] = &stored
	s.byValue[stored.Token] = stored.ID

	out := stored
	return &out, nil
}

func (s *Tokens) FindValidToken(ctx context.Context, token string, typ portalauth.TokenType, now time.Time) (*portalauth.VerificationToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byValue[token]
	if !ok {
		return nil, portalauth.ErrInvalidOrExpiredToken
	}
	tok := s.byID[id]
	if tok.Used || tok.Type != typ || !now.Before(tok.ExpiresAt) {
		return nil, portalauth.ErrInvalidOrExpiredToken
	}

	out := *tok
	return &out, nil
}

func (s *Tokens) ConsumeToken(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.byID[id]
	if !ok || tok.Used {
		return false, nil
	}
	tok.Used = true
	return true, nil
}

func (s *Tokens) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, tok := range s.byID {
		if now.Before(tok.ExpiresAt) {
			continue
		}
		delete(s.byID, id)
		delete(s.byValue, tok.Token)
		n++
	}
	return n, nil
}

// Len reports how many tokens are stored, used or not.
func (s *Tokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

var _ portalauth.TokenStore = (*Tokens)(nil)
