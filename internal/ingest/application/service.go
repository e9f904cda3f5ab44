package application

import (
	"context"
	"errors"
	"log"
	"time"

	directory "fieldwatch/internal/directory/domain"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// Sentinel errors mapped to HTTP statuses by the gateway handler. A missing
// key is a malformed request; an unknown key is an authentication failure.
var (
	ErrMissingKey     = errors.New("missing api key")
	ErrUnknownKey     = errors.New("unknown api key")
	ErrClientDisabled = errors.New("client disabled")
	ErrEmptyBatch     = errors.New("empty batch")
)

// ClientAuth authenticates reporting clients and records their heartbeats.
type ClientAuth interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*directory.Client, error)
	MarkReported(ctx context.Context, id string, now time.Time) error
	SetConnected(ctx context.Context, id string, connected bool, now time.Time) error
}

// TelemetryStore applies a reading to the point cache and sample series.
type TelemetryStore interface {
	Apply(ctx context.Context, clientID string, reading telemetry.Reading) (*telemetry.Point, error)
}

// PointEvaluator runs point alarms after a fresh value lands.
type PointEvaluator interface {
	EvaluatePoint(ctx context.Context, point *telemetry.Point) error
}

// Reaper deletes the client's points absent from the reported batch.
type Reaper interface {
	ReapMissingPoints(ctx context.Context, clientID string, keep map[string]bool) (int, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service is the ingestion pipeline behind the reporting endpoint: it
// authenticates the client, applies each reading in order, evaluates point
// alarms on the fresh values, and finally reaps points missing from the
// batch.
type Service struct {
	auth      ClientAuth
	store     TelemetryStore
	evaluator PointEvaluator
	reaper    Reaper
	clock     Clock
	logger    *log.Logger
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the wall clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewService constructs a Service.
func NewService(auth ClientAuth, store TelemetryStore, evaluator PointEvaluator, reaper Reaper, logger *log.Logger, opts ...ServiceOption) (*Service, error) {
	if auth == nil {
		return nil, errors.New("ingest service: nil client auth")
	}
	if store == nil {
		return nil, errors.New("ingest service: nil telemetry store")
	}
	if evaluator == nil {
		return nil, errors.New("ingest service: nil evaluator")
	}
	if reaper == nil {
		return nil, errors.New("ingest service: nil reaper")
	}
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		auth:      auth,
		store:     store,
		evaluator: evaluator,
		reaper:    reaper,
		clock:     systemClock{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Report processes one batch from a client and returns how many readings
// were applied. Readings are applied sequentially; a mid-batch failure stops
// the remainder but leaves earlier side effects in place. A disabled client
// is marked disconnected and rejected.
func (s *Service) Report(ctx context.Context, apiKey string, readings []telemetry.Reading) (int, error) {
	if s == nil {
		return 0, errors.New("ingest service: nil service")
	}
	if apiKey == "" {
		return 0, ErrMissingKey
	}
	if len(readings) == 0 {
		return 0, ErrEmptyBatch
	}

	client, err := s.auth.GetByAPIKey(ctx, apiKey)
	if err != nil {
		return 0, err
	}
	if client == nil {
		return 0, ErrUnknownKey
	}
	now := s.clock.Now().UTC()
	if !client.Enabled {
		if err := s.auth.SetConnected(ctx, client.ID, false, now); err != nil {
			s.logger.Printf("mark disabled client %s disconnected: %v", client.Name, err)
		}
		return 0, ErrClientDisabled
	}

	if err := s.auth.MarkReported(ctx, client.ID, now); err != nil {
		return 0, err
	}

	applied := 0
	keep := make(map[string]bool, len(readings))
	for i := range readings {
		reading := readings[i]
		if err := reading.Validate(); err != nil {
			return applied, err
		}
		point, err := s.store.Apply(ctx, client.ID, reading)
		if err != nil {
			return applied, err
		}
		keep[point.Name] = true
		applied++
		if err := s.evaluator.EvaluatePoint(ctx, point); err != nil {
			return applied, err
		}
	}

	if _, err := s.reaper.ReapMissingPoints(ctx, client.ID, keep); err != nil {
		return applied, err
	}
	return applied, nil
}
