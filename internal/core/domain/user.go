package domain

import "time"

// User is read-only from the admission path's perspective; accounts are
// managed elsewhere.
type User struct {
	ID        string
	LoginID   string
	CreatedAt time.Time
}
