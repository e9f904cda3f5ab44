package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	alarms "fieldwatch/internal/alarms/domain"
)

func newMockRepo(t *testing.T) (*AlarmRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewAlarmRepository(db), mock
}

func TestCreateStoresNullThresholdForBooleanConditions(t *testing.T) {
	repo, mock := newMockRepo(t)

	alarm := &alarms.Alarm{
		ID:          "a1",
		Name:        "Pump running",
		MonitorType: alarms.MonitorPoint,
		PointID:     "p1",
		GroupID:     "g1",
		Condition:   alarms.ConditionTrue,
		Threshold:   99, // must not be persisted for a boolean condition
	}

	mock.ExpectExec("INSERT INTO alarms").
		WithArgs("a1", "Pump running", "point", "p1", "", "g1", "true", nil, false,
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), alarm); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetByIDMissingReturnsNil(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM alarms").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	alarm, err := repo.GetByID(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if alarm != nil {
		t.Fatalf("expected nil alarm, got %+v", alarm)
	}
}

func TestSetActiveUnknownAlarmReturnsNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE alarms").
		WithArgs("ghost", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetActive(context.Background(), "ghost", true, time.Now())
	if !errors.Is(err, alarms.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListConnectionByClientScansNullThreshold(t *testing.T) {
	repo, mock := newMockRepo(t)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "name", "monitor_type", "point_id", "client_id", "group_id",
		"condition", "threshold", "active", "created_at", "updated_at",
	}).
		AddRow("a1", "Gateway Silent", "clientConnection", "", "c1", "g1", "gt", 300.0, true, now, now).
		AddRow("a2", "Door open", "clientConnection", "", "c1", "g1", "gt", nil, false, now, now)

	mock.ExpectQuery("SELECT (.+) FROM alarms").
		WithArgs("c1").
		WillReturnRows(rows)

	result, err := repo.ListConnectionByClient(context.Background(), "c1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 alarms, got %d", len(result))
	}
	if result[0].Threshold != 300 {
		t.Fatalf("expected threshold 300, got %g", result[0].Threshold)
	}
	if result[1].Threshold != 0 {
		t.Fatalf("expected zero threshold for null column, got %g", result[1].Threshold)
	}
	if !result[0].Active || result[1].Active {
		t.Fatalf("unexpected active flags: %v %v", result[0].Active, result[1].Active)
	}
}
