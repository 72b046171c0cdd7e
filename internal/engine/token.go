package engine

import (
	"fundbuilder/types"
	"sync"
)

// TokenStore holds the current account token for each logged-in user.
// It replaces ambient static session state with an explicit store that
// is injected where needed and safe for concurrent sessions.
type TokenStore struct {
	mu     sync.RWMutex
	tokens map[string]*types.UserToken
}

func NewTokenStore() *TokenStore {
	return &TokenStore{tokens: make(map[string]*types.UserToken)}
}

func (s *TokenStore) Set(token *types.UserToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[token.User] = token
}

func (s *TokenStore) Get(user string) (*types.UserToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	token, ok := s.tokens[user]
	return token, ok
}

func (s *TokenStore) Remove(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, user)
}
