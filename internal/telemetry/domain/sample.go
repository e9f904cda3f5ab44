package telemetry

import "time"

// Sample is one persisted time-series observation of a point. Samples are
// append-only and throttled: the store keeps at most one per point per log
// interval, while the point's cached last value updates on every report.
type Sample struct {
	ID      string    `json:"id"`
	PointID string    `json:"pointId"`
	Value   float64   `json:"presentValue"`
	TS      time.Time `json:"timestamp"`
}
