// seed provisions a demo dataset: an admin user, one client with an API key,
// a notification group, and a pair of alarms. Prints the credentials it
// generated.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	alarms "fieldwatch/internal/alarms/domain"
	alarmrepo "fieldwatch/internal/alarms/infrastructure/postgres"
	"fieldwatch/internal/auth"
	"fieldwatch/internal/config"
	directory "fieldwatch/internal/directory/domain"
	directoryrepo "fieldwatch/internal/directory/infrastructure/postgres"
)

func main() {
	logger := log.New(os.Stdout, "seed ", log.LstdFlags|log.LUTC)

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

	now := time.Now().UTC()
	clients := directoryrepo.NewClientRepository(db)
	groups := directoryrepo.NewGroupRepository(db)
	users := directoryrepo.NewUserRepository(db)
	rules := alarmrepo.NewAlarmRepository(db)

	password := directory.NewAPIKey()[:16]
	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Fatalf("hash password: %v", err)
	}
	admin := &directory.User{
		ID:           uuid.NewString(),
		Username:     "admin",
		PasswordHash: hash,
		Name:         "Administrator",
		Phone:        "",
		Role:         string(auth.RoleAdmin),
		CreatedAt:    now,
	}
	if err := users.Create(ctx, admin); err != nil {
		logger.Fatalf("create admin: %v", err)
	}

	group := &directory.Group{
		ID:          uuid.NewString(),
		Name:        "operations",
		Description: "default notification group",
		CreatedAt:   now,
	}
	if err := groups.Create(ctx, group); err != nil {
		logger.Fatalf("create group: %v", err)
	}
	if err := groups.AddUser(ctx, group.ID, admin.ID); err != nil {
		logger.Fatalf("attach admin: %v", err)
	}

	client := &directory.Client{
		ID:        uuid.NewString(),
		Name:      "demo-gateway",
		Location:  "plant floor",
		IPAddress: "10.0.0.2",
		APIKey:    directory.NewAPIKey(),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := clients.Create(ctx, client); err != nil {
		logger.Fatalf("create client: %v", err)
	}

	connectionAlarm := &alarms.Alarm{
		ID:          uuid.NewString(),
		Name:        "Gateway Silent",
		MonitorType: alarms.MonitorClientConnection,
		ClientID:    client.ID,
		GroupID:     group.ID,
		Condition:   alarms.ConditionGreater,
		Threshold:   300,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := rules.Create(ctx, connectionAlarm); err != nil {
		logger.Fatalf("create connection alarm: %v", err)
	}

	fmt.Println("seeded demo data")
	fmt.Printf("admin username: %s\n", admin.Username)
	fmt.Printf("admin password: %s\n", password)
	fmt.Printf("client api key: %s\n", client.APIKey)
}
