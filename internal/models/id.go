// ABOUTME: Row identifier generation for persisted entities.
// ABOUTME: ULIDs sort by creation time, which keeps key-value scans ordered.
package models

import "github.com/oklog/ulid/v2"

// NewID returns a new lexically sortable row id.
func NewID() string {
	return ulid.Make().String()
}
