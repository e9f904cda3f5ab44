package directory

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// Client represents a field gateway that authenticates with an API key and
// reports point readings.
type Client struct {
	ID           string    `json:"id"`
	Name         string    `json:"clientName"`
	Location     string    `json:"location"`
	IPAddress    string    `json:"ipAddress"`
	APIKey       string    `json:"apiKey,omitempty"`
	Enabled      bool      `json:"enabled"`
	Connected    bool      `json:"connectionStatus"`
	LastReportAt time.Time `json:"lastReportAt,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Validate checks client invariants.
func (c Client) Validate() error {
	if c.ID == "" {
		return errors.New("client: empty id")
	}
	if c.Name == "" {
		return errors.New("client: empty name")
	}
	if c.APIKey == "" {
		return errors.New("client: empty api key")
	}
	return nil
}

// NewAPIKey generates a random hex API key.
func NewAPIKey() string {
	buf := make([]byte, 32)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Stale reports whether the client should be considered disconnected at now,
// given the heartbeat timeout. A client that never reported is always stale.
func (c Client) Stale(now time.Time, timeout time.Duration) bool {
	if c.LastReportAt.IsZero() {
		return true
	}
	return now.Sub(c.LastReportAt) > timeout
}
