package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used when none is configured
const DefaultPasswordCost = 12

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// BcryptHasher is a PasswordHasher with a fixed work factor
type BcryptHasher struct {
	Cost int
}

// NewBcryptHasher returns a hasher, falling back to DefaultPasswordCost
// when cost is outside the bcrypt range.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return BcryptHasher{Cost: cost}
}

func (b BcryptHasher) HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	cost := b.Cost
	if cost == 0 {
		cost = DefaultPasswordCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

func (b BcryptHasher) ComparePasswordAndHash(password, hash string) error {
	return ComparePasswordAndHash(password, hash)
}

// HashPassword will generate a password hash
func HashPassword(password string) (string, error) {
	return BcryptHasher{Cost: DefaultPasswordCost}.HashPassword(password)
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

type hashResult struct {
	value string
	err   error
}

// hashWithContext runs the hasher off the calling goroutine so a slow
// work factor cannot outlive ctx.
func hashWithContext(ctx context.Context, hasher PasswordHasher, password string) (string, error) {
	done := make(chan hashResult, 1)
	go func() {
		h, err := hasher.HashPassword(password)
		done <- hashResult{value: h, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-done:
		return res.value, res.err
	}
}

// compareWithContext is the verification counterpart of hashWithContext.
func compareWithContext(ctx context.Context, hasher PasswordHasher, password, hash string) error {
	done := make(chan error, 1)
	go func() {
		done <- hasher.ComparePasswordAndHash(password, hash)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
