// Package consistency keeps cross-entity references coherent without
// storage-level foreign keys. Every cascade here is idempotent so a crashed
// run can simply be repeated.
package consistency

import (
	"context"
	"errors"
	"log"
	"time"

	"fieldwatch/internal/observability/metrics"
	telemetry "fieldwatch/internal/telemetry/domain"
)

// PointStore is the point-side surface of the cascades.
type PointStore interface {
	ListByClient(ctx context.Context, clientID string) ([]telemetry.Point, error)
	Delete(ctx context.Context, id string) error
	DetachGroup(ctx context.Context, groupID string) error
	ReconcileGroupRefs(ctx context.Context) (int64, error)
}

// SampleStore drops a deleted point's series.
type SampleStore interface {
	DeleteByPoint(ctx context.Context, pointID string) error
}

// AlarmStore is the alarm-side surface of the cascades.
type AlarmStore interface {
	DeleteByPoint(ctx context.Context, pointID string) error
	DeleteConnectionByClient(ctx context.Context, clientID string) error
	DeactivateByClient(ctx context.Context, clientID string, now time.Time) error
	ReconcileDanglingPointAlarms(ctx context.Context) (int64, error)
}

// ClientStore forces a disabled client offline and drops client rows.
type ClientStore interface {
	ForceOffline(ctx context.Context, id string, now time.Time) error
	Delete(ctx context.Context, id string) error
}

// GroupStore is the group-side surface of the cascades.
type GroupStore interface {
	Delete(ctx context.Context, id string) error
	DetachUsers(ctx context.Context, groupID string) error
	DetachUserEverywhere(ctx context.Context, userID string) error
	ReconcileMemberships(ctx context.Context) (int64, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Maintainer runs the delete and disable cascades.
type Maintainer struct {
	points  PointStore
	samples SampleStore
	alarms  AlarmStore
	clients ClientStore
	groups  GroupStore
	clock   Clock
	logger  *log.Logger
}

// Option customizes a Maintainer.
type Option func(*Maintainer)

// WithClock overrides the wall clock.
func WithClock(clock Clock) Option {
	return func(m *Maintainer) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewMaintainer constructs a Maintainer.
func NewMaintainer(points PointStore, samples SampleStore, alarms AlarmStore, clients ClientStore, groups GroupStore, logger *log.Logger, opts ...Option) (*Maintainer, error) {
	if points == nil {
		return nil, errors.New("maintainer: nil point store")
	}
	if samples == nil {
		return nil, errors.New("maintainer: nil sample store")
	}
	if alarms == nil {
		return nil, errors.New("maintainer: nil alarm store")
	}
	if clients == nil {
		return nil, errors.New("maintainer: nil client store")
	}
	if groups == nil {
		return nil, errors.New("maintainer: nil group store")
	}
	if logger == nil {
		logger = log.Default()
	}
	m := &Maintainer{
		points:  points,
		samples: samples,
		alarms:  alarms,
		clients: clients,
		groups:  groups,
		clock:   systemClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// DeletePoint removes a point and everything hanging off it: its alarms and
// its sample series. The group keeps existing; only the reference dies with
// the row.
func (m *Maintainer) DeletePoint(ctx context.Context, pointID string) error {
	if m == nil {
		return errors.New("maintainer: nil maintainer")
	}
	if pointID == "" {
		return errors.New("maintainer: empty point id")
	}
	if err := m.alarms.DeleteByPoint(ctx, pointID); err != nil {
		return err
	}
	if err := m.samples.DeleteByPoint(ctx, pointID); err != nil {
		return err
	}
	return m.points.Delete(ctx, pointID)
}

// ReapMissingPoints deletes every stored point of the client that is absent
// from the batch it just reported, cascading each deletion. keep maps point
// names present in the batch.
func (m *Maintainer) ReapMissingPoints(ctx context.Context, clientID string, keep map[string]bool) (int, error) {
	if m == nil {
		return 0, errors.New("maintainer: nil maintainer")
	}
	if clientID == "" {
		return 0, errors.New("maintainer: empty client id")
	}
	stored, err := m.points.ListByClient(ctx, clientID)
	if err != nil {
		return 0, err
	}
	reaped := 0
	for i := range stored {
		point := &stored[i]
		if keep[point.Name] {
			continue
		}
		if err := m.DeletePoint(ctx, point.ID); err != nil {
			return reaped, err
		}
		m.logger.Printf("reaped point %s of client %s", point.Name, clientID)
		reaped++
	}
	if reaped > 0 {
		metrics.AddPointsReaped(reaped)
	}
	return reaped, nil
}

// DisableClient forces the client offline and deactivates every alarm that
// depends on it. No notifications fire; a disabled client is silence by
// decision, not an incident.
func (m *Maintainer) DisableClient(ctx context.Context, clientID string) error {
	if m == nil {
		return errors.New("maintainer: nil maintainer")
	}
	if clientID == "" {
		return errors.New("maintainer: empty client id")
	}
	now := m.clock.Now().UTC()
	if err := m.clients.ForceOffline(ctx, clientID, now); err != nil {
		return err
	}
	return m.alarms.DeactivateByClient(ctx, clientID, now)
}

// DeleteClient removes a client and everything it owns: each point with its
// alarms and samples, then the client's connection alarms, then the row.
func (m *Maintainer) DeleteClient(ctx context.Context, clientID string) error {
	if m == nil {
		return errors.New("maintainer: nil maintainer")
	}
	if clientID == "" {
		return errors.New("maintainer: empty client id")
	}
	points, err := m.points.ListByClient(ctx, clientID)
	if err != nil {
		return err
	}
	for i := range points {
		if err := m.DeletePoint(ctx, points[i].ID); err != nil {
			return err
		}
	}
	if err := m.alarms.DeleteConnectionByClient(ctx, clientID); err != nil {
		return err
	}
	return m.clients.Delete(ctx, clientID)
}

// DeleteGroup detaches the group's points and users, then drops the group.
// Points and users survive; only the references go.
func (m *Maintainer) DeleteGroup(ctx context.Context, groupID string) error {
	if m == nil {
		return errors.New("maintainer: nil maintainer")
	}
	if groupID == "" {
		return errors.New("maintainer: empty group id")
	}
	if err := m.points.DetachGroup(ctx, groupID); err != nil {
		return err
	}
	if err := m.groups.DetachUsers(ctx, groupID); err != nil {
		return err
	}
	return m.groups.Delete(ctx, groupID)
}

// DetachDeletedUser drops a removed user's group memberships.
func (m *Maintainer) DetachDeletedUser(ctx context.Context, userID string) error {
	if m == nil {
		return errors.New("maintainer: nil maintainer")
	}
	if userID == "" {
		return errors.New("maintainer: empty user id")
	}
	return m.groups.DetachUserEverywhere(ctx, userID)
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	DanglingAlarms   int64 `json:"danglingAlarms"`
	OrphanGroupRefs  int64 `json:"orphanGroupRefs"`
	OrphanMembership int64 `json:"orphanMemberships"`
}

// Reconcile sweeps references left dangling by a crash between cascade steps.
func (m *Maintainer) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	if m == nil {
		return nil, errors.New("maintainer: nil maintainer")
	}
	report := &ReconcileReport{}
	var err error
	if report.DanglingAlarms, err = m.alarms.ReconcileDanglingPointAlarms(ctx); err != nil {
		return nil, err
	}
	if report.OrphanGroupRefs, err = m.points.ReconcileGroupRefs(ctx); err != nil {
		return nil, err
	}
	if report.OrphanMembership, err = m.groups.ReconcileMemberships(ctx); err != nil {
		return nil, err
	}
	return report, nil
}
