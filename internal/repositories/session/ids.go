package session

import (
	"fmt"
	"time"
)

// BuildSessionID derives a session ID from its host and start time. The same
// host starting at the same millisecond always maps to the same document,
// which is what makes CreateSession idempotent without server-side
// constraints.
func BuildSessionID(hostID string, startedAt time.Time) string {
	return fmt.Sprintf("%s_%d", hostID, startedAt.UnixMilli())
}
