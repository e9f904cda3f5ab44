package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fieldwatch/internal/observability/metrics"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// PointStore persists points keyed by (client, name).
type PointStore interface {
	Upsert(ctx context.Context, point *telemetry.Point) error
}

// SampleStore persists the append-only sample series.
type SampleStore interface {
	Insert(ctx context.Context, sample *telemetry.Sample) error
	LastSampleTime(ctx context.Context, pointID string) (time.Time, bool, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Store applies incoming readings to the point cache and throttles the
// persisted sample series to at most one row per point per interval.
type Store struct {
	points   PointStore
	samples  SampleStore
	interval time.Duration
	clock    Clock
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the wall clock.
func WithClock(clock Clock) StoreOption {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewStore constructs a Store. interval is the minimum spacing between two
// persisted samples of the same point.
func NewStore(points PointStore, samples SampleStore, interval time.Duration, opts ...StoreOption) (*Store, error) {
	if points == nil {
		return nil, errors.New("telemetry store: nil point store")
	}
	if samples == nil {
		return nil, errors.New("telemetry store: nil sample store")
	}
	if interval <= 0 {
		return nil, errors.New("telemetry store: non-positive interval")
	}
	s := &Store{
		points:   points,
		samples:  samples,
		interval: interval,
		clock:    systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Apply upserts the point described by the reading, always overwriting the
// cached last value, and appends a sample only when the throttle interval has
// elapsed since the previous one. The returned point carries the stored id
// and group assignment.
func (s *Store) Apply(ctx context.Context, clientID string, reading telemetry.Reading) (*telemetry.Point, error) {
	if s == nil {
		return nil, errors.New("telemetry store: nil store")
	}
	if clientID == "" {
		return nil, errors.New("telemetry store: empty client id")
	}
	now := s.clock.Now().UTC()

	point := &telemetry.Point{
		ID:           uuid.NewString(),
		ClientID:     clientID,
		Name:         reading.Name,
		IPAddress:    reading.IPAddress,
		TypeCode:     reading.TypeCode,
		ExternalID:   reading.ExternalID,
		LastValue:    reading.Value,
		LastUpdateAt: now,
	}
	if err := s.points.Upsert(ctx, point); err != nil {
		return nil, err
	}

	if err := s.appendSampleIfDue(ctx, point, now); err != nil {
		return nil, err
	}
	return point, nil
}

func (s *Store) appendSampleIfDue(ctx context.Context, point *telemetry.Point, now time.Time) error {
	last, ok, err := s.samples.LastSampleTime(ctx, point.ID)
	if err != nil {
		return err
	}
	if ok && now.Sub(last) < s.interval {
		return nil
	}
	sample := &telemetry.Sample{
		ID:      uuid.NewString(),
		PointID: point.ID,
		Value:   point.LastValue,
		TS:      now,
	}
	if err := s.samples.Insert(ctx, sample); err != nil {
		return err
	}
	metrics.IncSampleAppended()
	return nil
}
