package utils

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when asked to hash an empty password.
var ErrEmptyPassword = errors.New("empty password")

// unknownAccountHash is compared against when no account matched, so a
// login for an unknown email costs as much as a wrong password.
var unknownAccountHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("no account"), bcrypt.DefaultCost)
	return h
})

// HashPassword hashes plain for users.password_hash. Costs below
// bcrypt.MinCost fall back to bcrypt.DefaultCost.
func HashPassword(plain string, cost int) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PasswordMatches reports whether plain is the password behind hash.
// An empty hash stands for a missing account and never matches.
func PasswordMatches(hash, plain string) bool {
	if hash == "" {
		_ = bcrypt.CompareHashAndPassword(unknownAccountHash(), []byte(plain))
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
