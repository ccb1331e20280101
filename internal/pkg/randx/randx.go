/*
Package randx provides identifier generation and random selection helpers.

Identifiers are standard UUID v4 strings. Random picks use crypto/rand so that
display names and colours are not predictable from process start time.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// NewID generates a UUID v4 string used for sessions, users and connections.
func NewID() string {
	return uuid.New().String()
}

// IsValidID reports whether id parses as a UUID.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Index returns a uniformly distributed integer in [0, n).
func Index(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("randx: invalid range %d", n)
	}

	num, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("failed to generate random index: %v", err)
	}

	return int(num.Int64()), nil
}

// Pick returns a random element of items. On entropy failure it falls back to the first element.
func Pick[T any](items []T) T {
	i, err := Index(len(items))
	if err != nil {
		var zero T
		if len(items) == 0 {
			return zero
		}
		return items[0]
	}
	return items[i]
}
