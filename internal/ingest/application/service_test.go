package application

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	directory "fieldwatch/internal/directory/domain"
	telemetry "fieldwatch/internal/telemetry/domain"
)

type stubAuth struct {
	clients      map[string]*directory.Client
	reported     []string
	disconnected []string
}

func (s *stubAuth) GetByAPIKey(_ context.Context, apiKey string) (*directory.Client, error) {
	return s.clients[apiKey], nil
}

func (s *stubAuth) MarkReported(_ context.Context, id string, _ time.Time) error {
	s.reported = append(s.reported, id)
	return nil
}

func (s *stubAuth) SetConnected(_ context.Context, id string, connected bool, _ time.Time) error {
	if !connected {
		s.disconnected = append(s.disconnected, id)
	}
	return nil
}

type stubStore struct {
	applied []telemetry.Reading
	failOn  string
}

func (s *stubStore) Apply(_ context.Context, clientID string, reading telemetry.Reading) (*telemetry.Point, error) {
	if reading.Name == s.failOn {
		return nil, errors.New("storage down")
	}
	s.applied = append(s.applied, reading)
	return &telemetry.Point{
		ID:        "pt-" + reading.Name,
		ClientID:  clientID,
		Name:      reading.Name,
		LastValue: reading.Value,
	}, nil
}

type stubEvaluator struct {
	evaluated []string
}

func (s *stubEvaluator) EvaluatePoint(_ context.Context, point *telemetry.Point) error {
	s.evaluated = append(s.evaluated, point.Name)
	return nil
}

type stubReaper struct {
	calls []map[string]bool
}

func (s *stubReaper) ReapMissingPoints(_ context.Context, _ string, keep map[string]bool) (int, error) {
	s.calls = append(s.calls, keep)
	return 0, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestService(t *testing.T, auth *stubAuth, store *stubStore, evaluator *stubEvaluator, reaper *stubReaper) *Service {
	t.Helper()
	service, err := NewService(auth, store, evaluator, reaper, log.New(discard{}, "", 0))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service
}

func enabledClient() *directory.Client {
	return &directory.Client{ID: "c1", Name: "plant-a", APIKey: "key-1", Enabled: true}
}

func TestReportAppliesBatchAndReaps(t *testing.T) {
	auth := &stubAuth{clients: map[string]*directory.Client{"key-1": enabledClient()}}
	store := &stubStore{}
	evaluator := &stubEvaluator{}
	reaper := &stubReaper{}
	service := newTestService(t, auth, store, evaluator, reaper)

	readings := []telemetry.Reading{
		{Name: "temp-a", Value: 21.5},
		{Name: "temp-b", Value: 1},
	}
	applied, err := service.Report(context.Background(), "key-1", readings)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 readings applied, got %d", applied)
	}
	if len(auth.reported) != 1 {
		t.Fatalf("expected heartbeat recorded once, got %d", len(auth.reported))
	}
	if len(evaluator.evaluated) != 2 {
		t.Fatalf("expected both points evaluated, got %v", evaluator.evaluated)
	}
	if len(reaper.calls) != 1 {
		t.Fatalf("expected one reap pass, got %d", len(reaper.calls))
	}
	keep := reaper.calls[0]
	if !keep["temp-a"] || !keep["temp-b"] {
		t.Fatalf("expected reap keep-set to cover the batch, got %v", keep)
	}
}

func TestReportRejectsUnknownKey(t *testing.T) {
	auth := &stubAuth{clients: map[string]*directory.Client{}}
	service := newTestService(t, auth, &stubStore{}, &stubEvaluator{}, &stubReaper{})

	_, err := service.Report(context.Background(), "bogus", []telemetry.Reading{{Name: "x", Value: 1}})
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestReportRejectsMissingKey(t *testing.T) {
	auth := &stubAuth{clients: map[string]*directory.Client{}}
	service := newTestService(t, auth, &stubStore{}, &stubEvaluator{}, &stubReaper{})

	_, err := service.Report(context.Background(), "", []telemetry.Reading{{Name: "x", Value: 1}})
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestReportRejectsDisabledClientAndDisconnects(t *testing.T) {
	client := enabledClient()
	client.Enabled = false
	auth := &stubAuth{clients: map[string]*directory.Client{"key-1": client}}
	store := &stubStore{}
	service := newTestService(t, auth, store, &stubEvaluator{}, &stubReaper{})

	_, err := service.Report(context.Background(), "key-1", []telemetry.Reading{{Name: "x", Value: 1}})
	if !errors.Is(err, ErrClientDisabled) {
		t.Fatalf("expected ErrClientDisabled, got %v", err)
	}
	if len(auth.disconnected) != 1 || auth.disconnected[0] != "c1" {
		t.Fatalf("expected client marked disconnected, got %v", auth.disconnected)
	}
	if len(store.applied) != 0 {
		t.Fatalf("expected no readings applied, got %d", len(store.applied))
	}
}

func TestReportRejectsEmptyBatch(t *testing.T) {
	auth := &stubAuth{clients: map[string]*directory.Client{"key-1": enabledClient()}}
	service := newTestService(t, auth, &stubStore{}, &stubEvaluator{}, &stubReaper{})

	if _, err := service.Report(context.Background(), "key-1", nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestReportMidBatchFailureKeepsEarlierEffects(t *testing.T) {
	auth := &stubAuth{clients: map[string]*directory.Client{"key-1": enabledClient()}}
	store := &stubStore{failOn: "temp-b"}
	evaluator := &stubEvaluator{}
	reaper := &stubReaper{}
	service := newTestService(t, auth, store, evaluator, reaper)

	readings := []telemetry.Reading{
		{Name: "temp-a", Value: 1},
		{Name: "temp-b", Value: 2},
		{Name: "temp-c", Value: 3},
	}
	applied, err := service.Report(context.Background(), "key-1", readings)
	if err == nil {
		t.Fatal("expected mid-batch failure to surface")
	}
	if applied != 1 {
		t.Fatalf("expected 1 reading applied before the failure, got %d", applied)
	}
	if len(evaluator.evaluated) != 1 || evaluator.evaluated[0] != "temp-a" {
		t.Fatalf("expected only temp-a evaluated, got %v", evaluator.evaluated)
	}
	if len(reaper.calls) != 0 {
		t.Fatalf("expected no reap pass after a failed batch, got %d", len(reaper.calls))
	}
}
