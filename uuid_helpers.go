package auth

import (
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// HashIDGenerator derives a deterministic user ID from the email. It
// returns uuid.Nil when hashing fails so the store falls back to a random ID.
func HashIDGenerator(email string) uuid.UUID {
	id, err := hashid.NewUUID(NormalizeEmail(email))
	if err != nil {
		return uuid.Nil
	}
	return id
}
