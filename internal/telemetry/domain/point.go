package telemetry

import (
	"errors"
	"time"
)

// Point is a single monitored variable owned by exactly one client.
// Identity is (ClientID, Name); the numeric external id and type code come
// from the reporting gateway and are mutable metadata.
type Point struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	Name         string    `json:"pointName"`
	IPAddress    string    `json:"ipAddress"`
	TypeCode     int       `json:"pointType"`
	ExternalID   int       `json:"pointId"`
	GroupID      string    `json:"groupId,omitempty"`
	LastValue    float64   `json:"presentValue"`
	LastUpdateAt time.Time `json:"timestamp"`
}

// Validate checks point invariants.
func (p Point) Validate() error {
	if p.ID == "" {
		return errors.New("point: empty id")
	}
	if p.ClientID == "" {
		return errors.New("point: empty client id")
	}
	if p.Name == "" {
		return errors.New("point: empty name")
	}
	return nil
}

// Reading is one reported observation for a named point.
type Reading struct {
	Name       string
	IPAddress  string
	TypeCode   int
	ExternalID int
	Value      float64
}

// Validate checks reading invariants.
func (r Reading) Validate() error {
	if r.Name == "" {
		return errors.New("reading: empty point name")
	}
	return nil
}

// Truthy reports the boolean coercion of a reported value.
func Truthy(value float64) bool {
	return value != 0
}
