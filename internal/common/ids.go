package common

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewULID returns a lexicographically sortable id (26 chars).
// Ids made in the same millisecond by one process still sort in creation order.
func NewULID() string {
	return ulid.Make().String()
}

func NewUUID() string {
	return uuid.NewString()
}
