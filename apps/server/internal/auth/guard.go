// Package auth guards operator endpoints with a bcrypt-hashed bearer token.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	GuardModeOpen  = "open"
	GuardModeToken = "token"
)

var (
	ErrMissingToken = errors.New("missing operator token")
	ErrInvalidToken = errors.New("invalid operator token")
)

// Guard decides whether a request may read operator data.
type Guard interface {
	Check(token string) error
	Mode() string
}

// TokenGuard accepts a single operator token whose bcrypt hash it holds.
// A guard without a hash accepts every request.
type TokenGuard struct {
	hash []byte
}

func NewTokenGuard(hash string) (*TokenGuard, error) {
	hash = strings.TrimSpace(hash)
	if hash == "" {
		return &TokenGuard{}, nil
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("STATS_TOKEN_HASH is not a bcrypt hash: %w", err)
	}
	return &TokenGuard{hash: []byte(hash)}, nil
}

// NewGuardFromEnv reads STATS_TOKEN_HASH.
func NewGuardFromEnv() (*TokenGuard, error) {
	return NewTokenGuard(os.Getenv("STATS_TOKEN_HASH"))
}

func (g *TokenGuard) Mode() string {
	if len(g.hash) == 0 {
		return GuardModeOpen
	}
	return GuardModeToken
}

func (g *TokenGuard) Check(token string) error {
	if len(g.hash) == 0 {
		return nil
	}
	if token == "" {
		return ErrMissingToken
	}
	if bcrypt.CompareHashAndPassword(g.hash, []byte(token)) != nil {
		return ErrInvalidToken
	}
	return nil
}

// HashToken produces the value to put in STATS_TOKEN_HASH.
func HashToken(token string, cost int) (string, error) {
	token = strings.TrimSpace(token)
	if len(token) < 8 {
		return "", errors.New("operator token must be at least 8 characters")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	out, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
