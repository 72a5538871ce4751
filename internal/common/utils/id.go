// Package utils provides small shared helpers: id generation and
// query-limit clamping.
package utils

import (
	"fmt"
	"time"

	"github.com/lucsky/cuid"
)

// NewID generates a collision-resistant entity id
func NewID() string {
	return cuid.New()
}

// GenerateEventID generates a unique event id with a source prefix.
// Format: "prefix-sourceID-nanoseconds".
func GenerateEventID(prefix, sourceID string) string {
	return fmt.Sprintf("%s-%s-%d", prefix, sourceID, time.Now().UnixNano())
}
