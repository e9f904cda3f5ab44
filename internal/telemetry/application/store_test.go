package application

import (
	"context"
	"testing"
	"time"

	telemetry "fieldwatch/internal/telemetry/domain"
)

type stubPointStore struct {
	byKey map[string]*telemetry.Point
}

func newStubPointStore() *stubPointStore {
	return &stubPointStore{byKey: make(map[string]*telemetry.Point)}
}

func (s *stubPointStore) Upsert(_ context.Context, point *telemetry.Point) error {
	key := point.ClientID + "/" + point.Name
	if existing, ok := s.byKey[key]; ok {
		existing.IPAddress = point.IPAddress
		existing.TypeCode = point.TypeCode
		existing.ExternalID = point.ExternalID
		existing.LastValue = point.LastValue
		existing.LastUpdateAt = point.LastUpdateAt
		point.ID = existing.ID
		point.GroupID = existing.GroupID
		return nil
	}
	stored := *point
	s.byKey[key] = &stored
	return nil
}

type stubSampleStore struct {
	samples []telemetry.Sample
}

func (s *stubSampleStore) Insert(_ context.Context, sample *telemetry.Sample) error {
	s.samples = append(s.samples, *sample)
	return nil
}

func (s *stubSampleStore) LastSampleTime(_ context.Context, pointID string) (time.Time, bool, error) {
	var last time.Time
	found := false
	for _, sample := range s.samples {
		if sample.PointID == pointID && sample.TS.After(last) {
			last = sample.TS
			found = true
		}
	}
	return last, found, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestApplyUpsertIsIdempotentOnIdentity(t *testing.T) {
	points := newStubPointStore()
	samples := &stubSampleStore{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store, err := NewStore(points, samples, 15*time.Minute, WithClock(clock))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	reading := telemetry.Reading{Name: "supply-temp", IPAddress: "10.0.0.9", TypeCode: 2, ExternalID: 7, Value: 21.5}
	first, err := store.Apply(context.Background(), "client-1", reading)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}

	clock.Advance(time.Minute)
	reading.Value = 22.0
	second, err := store.Apply(context.Background(), "client-1", reading)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected same point id, got %q and %q", first.ID, second.ID)
	}
	if len(points.byKey) != 1 {
		t.Fatalf("expected one stored point, got %d", len(points.byKey))
	}
	if got := points.byKey["client-1/supply-temp"].LastValue; got != 22.0 {
		t.Fatalf("expected cached value 22.0, got %v", got)
	}
}

func TestApplyThrottlesSamples(t *testing.T) {
	points := newStubPointStore()
	samples := &stubSampleStore{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	store, err := NewStore(points, samples, 15*time.Minute, WithClock(clock))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	reading := telemetry.Reading{Name: "supply-temp", TypeCode: 2, Value: 21.5}
	if _, err := store.Apply(context.Background(), "client-1", reading); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if len(samples.samples) != 1 {
		t.Fatalf("expected first reading to persist a sample, got %d", len(samples.samples))
	}

	clock.Advance(time.Minute)
	reading.Value = 22.0
	if _, err := store.Apply(context.Background(), "client-1", reading); err != nil {
		t.Fatalf("apply after 1m: %v", err)
	}
	if len(samples.samples) != 1 {
		t.Fatalf("expected 1m reading to be throttled, got %d samples", len(samples.samples))
	}

	clock.Advance(15 * time.Minute)
	reading.Value = 23.0
	if _, err := store.Apply(context.Background(), "client-1", reading); err != nil {
		t.Fatalf("apply after 16m: %v", err)
	}
	if len(samples.samples) != 2 {
		t.Fatalf("expected 16m reading to persist, got %d samples", len(samples.samples))
	}
	if got := samples.samples[1].Value; got != 23.0 {
		t.Fatalf("expected persisted value 23.0, got %v", got)
	}
}
