package classroom

import "time"

// Classroom is a named class group, e.g. "X-IPA-1".
type Classroom struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is the list direction by id.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)
