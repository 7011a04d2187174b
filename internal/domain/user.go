package domain

import (
	"time"
)

// User represents an anonymous device identity. Each device owns its own
// duo and memory slots in durable storage.
type User struct {
	UserID     string    `json:"user_id"`
	Username   string    `json:"username"`
	LastSeenAt time.Time `json:"last_seen_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
