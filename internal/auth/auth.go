// Package auth validates the shared token a peer presents when it joins a
// relay.
package auth

import (
	"crypto/subtle"
	"errors"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates a join token.
type Validator interface {
	Validate(token string) error
}

// StaticToken admits peers presenting one shared token.
type StaticToken struct {
	Token string
}

func (s StaticToken) Validate(token string) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token string) error

func (f FuncValidator) Validate(token string) error {
	return f(token)
}

// Check runs v against token. A nil validator admits every token.
func Check(v Validator, token string) error {
	if v == nil {
		return nil
	}
	return v.Validate(token)
}
