package alarms

import (
	"errors"
	"math"
	"time"
)

// MonitorType discriminates what an alarm watches.
type MonitorType string

const (
	// MonitorPoint binds the alarm to a point's reported values.
	MonitorPoint MonitorType = "point"
	// MonitorClientConnection binds the alarm to a client's report staleness.
	MonitorClientConnection MonitorType = "clientConnection"
)

// Condition selects the trigger rule.
type Condition string

const (
	ConditionTrue  Condition = "true"
	ConditionFalse Condition = "false"
	// ConditionGreater triggers when the value (or elapsed silence, for
	// connection alarms) is at least the threshold.
	ConditionGreater Condition = "gt"
	// ConditionLess triggers when the value (or elapsed silence) is at most
	// the threshold.
	ConditionLess Condition = "lt"
)

// Alarm is a persistent rule over a point's value or a client's connectivity
// with two-state edge-triggered behavior. Exactly one of PointID/ClientID is
// set, matching MonitorType.
type Alarm struct {
	ID          string      `json:"id"`
	Name        string      `json:"alarmName"`
	MonitorType MonitorType `json:"monitorType"`
	PointID     string      `json:"pointId,omitempty"`
	ClientID    string      `json:"clientId,omitempty"`
	GroupID     string      `json:"groupId"`
	Condition   Condition   `json:"conditionType"`
	Threshold   float64     `json:"threshold"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Validate checks the target discriminator and condition/threshold rules.
func (a Alarm) Validate() error {
	if a.ID == "" {
		return errors.New("alarm: empty id")
	}
	if a.Name == "" {
		return errors.New("alarm: empty name")
	}
	if a.GroupID == "" {
		return errors.New("alarm: empty group id")
	}
	switch a.MonitorType {
	case MonitorPoint:
		if a.PointID == "" {
			return errors.New("alarm: point id required for point alarms")
		}
		if a.ClientID != "" {
			return errors.New("alarm: client id must be empty for point alarms")
		}
		if !a.Condition.Valid() {
			return errors.New("alarm: invalid condition")
		}
	case MonitorClientConnection:
		if a.ClientID == "" {
			return errors.New("alarm: client id required for connection alarms")
		}
		if a.PointID != "" {
			return errors.New("alarm: point id must be empty for connection alarms")
		}
		if a.Condition != ConditionGreater && a.Condition != ConditionLess {
			return errors.New("alarm: connection alarms require gt or lt")
		}
		if a.Threshold < 0 {
			return errors.New("alarm: connection threshold must be non-negative seconds")
		}
	default:
		return errors.New("alarm: invalid monitor type")
	}
	if a.Condition.Numeric() {
		if math.IsNaN(a.Threshold) || math.IsInf(a.Threshold, 0) {
			return errors.New("alarm: threshold must be finite")
		}
	}
	return nil
}

// Valid returns true when the condition is supported.
func (c Condition) Valid() bool {
	switch c {
	case ConditionTrue, ConditionFalse, ConditionGreater, ConditionLess:
		return true
	default:
		return false
	}
}

// Numeric returns true for threshold-comparing conditions.
func (c Condition) Numeric() bool {
	return c == ConditionGreater || c == ConditionLess
}

// ValidMonitorType returns true when the monitor type is supported.
func ValidMonitorType(value string) bool {
	switch MonitorType(value) {
	case MonitorPoint, MonitorClientConnection:
		return true
	default:
		return false
	}
}
