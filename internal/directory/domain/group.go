package directory

import (
	"errors"
	"time"
)

// Group is a routing unit linking users to the points (and transitively
// clients) they should be notified about.
type Group struct {
	ID          string    `json:"id"`
	Name        string    `json:"groupName"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate checks group invariants.
func (g Group) Validate() error {
	if g.ID == "" {
		return errors.New("group: empty id")
	}
	if g.Name == "" {
		return errors.New("group: empty name")
	}
	return nil
}
