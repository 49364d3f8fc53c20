package domain

import "github.com/oklog/ulid/v2"

// NewID returns a lexicographically sortable id. Ids created by one process are
// strictly increasing, which lets buffers and the store order messages by id.
func NewID() string {
	return ulid.Make().String()
}
