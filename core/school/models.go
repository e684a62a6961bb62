package school

import "time"

// School is owned by the administration back office; the portal only
// references it by ID.
type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Grades    []string  `json:"grades"`
	CreatedAt time.Time `json:"created_at"` // UTC
}
