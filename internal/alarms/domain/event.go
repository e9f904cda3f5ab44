package alarms

import "time"

// EventTypeAlarm marks events recorded by point-alarm activations.
const EventTypeAlarm = "alarm"

// Event is an immutable audit record written when a point-bound alarm
// becomes active.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"eventType"`
	PointID   string    `json:"pointId"`
	GroupID   string    `json:"groupId"`
	Value     float64   `json:"presentValue"`
	CreatedAt time.Time `json:"timestamp"`
}
