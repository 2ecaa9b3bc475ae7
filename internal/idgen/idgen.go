// Package idgen generates record identifiers.
package idgen

import "github.com/google/uuid"

// New returns a time-ordered UUIDv7 string, or a random UUIDv4 if the v7 clock read fails.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
