// Package auth verifies admin credentials and issues admin tokens.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultUsername and DefaultPassword are used when no credentials are
	// configured.
	DefaultUsername = "root"
	DefaultPassword = "video"
)

// Credentials is a single admin account with a bcrypt password hash.
// It implements state.Authenticator.
type Credentials struct {
	username string
	hash     []byte
}

// NewCredentials wraps an existing bcrypt hash.
func NewCredentials(username, hash string) (*Credentials, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("password hash for %q: %w", username, err)
	}
	return &Credentials{username: username, hash: []byte(hash)}, nil
}

// DefaultCredentials hashes DefaultPassword for DefaultUsername.
func DefaultCredentials() (*Credentials, error) {
	hash, err := HashPassword(DefaultPassword, bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return NewCredentials(DefaultUsername, hash)
}

// HashPassword returns the bcrypt hash of plain.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

// Username returns the account name.
func (c *Credentials) Username() string {
	return c.username
}

// Verify reports whether username and password match the account.
func (c *Credentials) Verify(username, password string) bool {
	nameOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return nameOK && passOK
}
