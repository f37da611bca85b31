package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random 32 character hex id, used for request correlation
// and by the fake API for refresh tokens.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
