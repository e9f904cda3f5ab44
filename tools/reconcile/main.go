// reconcile sweeps dangling cross-entity references left by interrupted
// cascades; safe to run repeatedly.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	alarmrepo "fieldwatch/internal/alarms/infrastructure/postgres"
	"fieldwatch/internal/config"
	"fieldwatch/internal/consistency"
	directoryrepo "fieldwatch/internal/directory/infrastructure/postgres"
	telemetryrepo "fieldwatch/internal/telemetry/infrastructure/postgres"
)

func main() {
	logger := log.New(os.Stdout, "reconcile ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal("DATABASE_URL is not set")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		logger.Fatalf("ping db: %v", err)
	}

	maintainer, err := consistency.NewMaintainer(
		telemetryrepo.NewPointRepository(db),
		telemetryrepo.NewSampleRepository(db),
		alarmrepo.NewAlarmRepository(db),
		directoryrepo.NewClientRepository(db),
		directoryrepo.NewGroupRepository(db),
		logger,
	)
	if err != nil {
		logger.Fatalf("maintainer: %v", err)
	}

	report, err := maintainer.Reconcile(ctx)
	if err != nil {
		logger.Fatalf("reconcile: %v", err)
	}
	fmt.Printf("dangling alarms removed: %d\n", report.DanglingAlarms)
	fmt.Printf("orphan group refs cleared: %d\n", report.OrphanGroupRefs)
	fmt.Printf("orphan memberships removed: %d\n", report.OrphanMembership)
}
