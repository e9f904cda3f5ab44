package directory

import (
	"errors"
	"time"
)

// User is a notification recipient and an API account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Name         string    `json:"name"`
	Phone        string    `json:"phoneNum"`
	Role         string    `json:"userType"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Validate checks user invariants.
func (u User) Validate() error {
	if u.ID == "" {
		return errors.New("user: empty id")
	}
	if u.Username == "" {
		return errors.New("user: empty username")
	}
	return nil
}

// Recipient is the notification-facing view of a user. Only users with a
// non-empty phone number become recipients.
type Recipient struct {
	UserID string
	Name   string
	Phone  string
}
