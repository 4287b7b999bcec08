// Package auth provides the static credential table.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized  = errors.New("auth: unauthorized")
	ErrInvalidEntry  = errors.New("auth: invalid credential entry")
	ErrDuplicateUser = errors.New("auth: duplicate user")
)

// Validator checks one username/password pair.
type Validator interface {
	Validate(user, pass string) error
}

// Credential is one table entry. Exactly one of Password or PasswordHash is set.
type Credential struct {
	User         string
	Password     string
	PasswordHash string
}

// Table maps users to secrets. It is read-only after NewTable returns and is
// safe for concurrent use without locking.
type Table struct {
	entries map[string]Credential
}

func NewTable(creds []Credential) (*Table, error) {
	t := &Table{entries: make(map[string]Credential, len(creds))}
	for i, c := range creds {
		c.User = strings.TrimSpace(c.User)
		if c.User == "" {
			return nil, fmt.Errorf("%w: entry %d missing user", ErrInvalidEntry, i)
		}
		if strings.ContainsFunc(c.User, isSpace) {
			return nil, fmt.Errorf("%w: user %q contains whitespace", ErrInvalidEntry, c.User)
		}
		if (c.Password == "") == (c.PasswordHash == "") {
			return nil, fmt.Errorf("%w: user %q needs exactly one of password or password_hash", ErrInvalidEntry, c.User)
		}
		if c.PasswordHash != "" {
			if _, err := bcrypt.Cost([]byte(c.PasswordHash)); err != nil {
				return nil, fmt.Errorf("%w: user %q password_hash: %w", ErrInvalidEntry, c.User, err)
			}
		}
		if _, ok := t.entries[c.User]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateUser, c.User)
		}
		t.entries[c.User] = c
	}
	return t, nil
}

func (t *Table) Validate(user, pass string) error {
	c, ok := t.entries[user]
	if !ok {
		return ErrUnauthorized
	}
	if c.PasswordHash != "" {
		if bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(pass)) != nil {
			return ErrUnauthorized
		}
		return nil
	}
	if subtle.ConstantTimeCompare([]byte(c.Password), []byte(pass)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

func (t *Table) Len() int {
	return len(t.entries)
}

// HashPassword returns a bcrypt hash suitable for Credential.PasswordHash.
func HashPassword(pass string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(user, pass string) error

func (f FuncValidator) Validate(user, pass string) error {
	return f(user, pass)
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
