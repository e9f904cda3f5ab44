package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	alarmapp "fieldwatch/internal/alarms/application"
	alarmrepo "fieldwatch/internal/alarms/infrastructure/postgres"
	alarmhttp "fieldwatch/internal/alarms/interfaces/http"
	"fieldwatch/internal/api/httpx"
	"fieldwatch/internal/audit"
	"fieldwatch/internal/auth"
	"fieldwatch/internal/config"
	"fieldwatch/internal/consistency"
	directoryapp "fieldwatch/internal/directory/application"
	directoryrepo "fieldwatch/internal/directory/infrastructure/postgres"
	directoryhttp "fieldwatch/internal/directory/interfaces/http"
	"fieldwatch/internal/exports"
	ingestapp "fieldwatch/internal/ingest/application"
	ingesthttp "fieldwatch/internal/ingest/interfaces/http"
	"fieldwatch/internal/notify"
	"fieldwatch/internal/observability/metrics"
	telemetryapp "fieldwatch/internal/telemetry/application"
	telemetry "fieldwatch/internal/telemetry/domain"
	telemetryrepo "fieldwatch/internal/telemetry/infrastructure/postgres"
	telemetryhttp "fieldwatch/internal/telemetry/interfaces/http"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	clientRepo := directoryrepo.NewClientRepository(db)
	groupRepo := directoryrepo.NewGroupRepository(db)
	userRepo := directoryrepo.NewUserRepository(db)
	pointRepo := telemetryrepo.NewPointRepository(db)
	sampleRepo := telemetryrepo.NewSampleRepository(db)
	alarmRepo := alarmrepo.NewAlarmRepository(db)
	eventRepo := alarmrepo.NewEventRepository(db)

	channel := buildChannel(cfg, logger)
	pool, err := notify.NewPool(channel, cfg.NotifyWorkers, cfg.NotifyQueueSize, logger,
		notify.WithSendTimeout(cfg.NotifyTimeout))
	if err != nil {
		logger.Fatalf("notify pool error: %v", err)
	}
	defer pool.Close()

	broker := alarmhttp.NewSSEBroker()
	evaluator, err := alarmapp.NewEvaluator(alarmRepo, eventRepo, groupRepo, pool, logger,
		alarmapp.WithEventPublisher(broker))
	if err != nil {
		logger.Fatalf("evaluator error: %v", err)
	}

	monitor, err := directoryapp.NewConnectivityMonitor(clientRepo, groupRepo, pool, cfg.HeartbeatTimeout, logger,
		directoryapp.WithConnectionEvaluator(evaluator))
	if err != nil {
		logger.Fatalf("connectivity monitor error: %v", err)
	}

	maintainer, err := consistency.NewMaintainer(pointRepo, sampleRepo, alarmRepo, clientRepo, groupRepo, logger)
	if err != nil {
		logger.Fatalf("maintainer error: %v", err)
	}

	store, err := telemetryapp.NewStore(pointRepo, sampleRepo, cfg.SampleLogInterval)
	if err != nil {
		logger.Fatalf("telemetry store error: %v", err)
	}

	ingestService, err := ingestapp.NewService(clientRepo, store, evaluator, maintainer, logger)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}

	authService, err := auth.NewService(userRepo, []byte(cfg.JWTSecret), 24*time.Hour)
	if err != nil {
		logger.Fatalf("auth service error: %v", err)
	}

	alarmHandler := alarmhttp.NewHandler(alarmRepo, eventRepo, referenceResolver{
		points:  pointRepo,
		clients: clientRepo,
		groups:  groupRepo,
	})
	telemetryHandler := telemetryhttp.NewHandler(pointRepo, sampleRepo, maintainer, groupRepo)
	directoryHandler := directoryhttp.NewHandler(clientRepo, monitor, groupRepo, userRepo, maintainer, authService)
	exportHandler := exports.NewHandler(eventRepo, sampleSource{points: pointRepo, samples: sampleRepo}, clientRepo)
	ingestHandler := ingesthttp.NewHandler(ingestService)

	policy := auth.NewDefaultPolicy(
		[]string{"/points/state", "/api/v1/login", "/healthz", "/metrics"},
		nil,
	)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(httpx.LoggingMiddleware(logger))
	router.Use(audit.Middleware(audit.NewRepository(db), logger))
	router.Method(http.MethodPost, "/points/state", ingestHandler)
	router.Post("/api/v1/login", directoryHandler.Login)
	router.Method(http.MethodGet, "/api/v1/alarms/stream", alarmhttp.NewStreamHandler(broker))
	router.Route("/api/v1", func(r chi.Router) {
		alarmHandler.Routes(r)
		telemetryHandler.Routes(r)
		directoryHandler.Routes(r)
		exportHandler.Routes(r)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go monitor.Run(ctx, cfg.SweepInterval)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: authMiddleware.Wrap(router)}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Printf("listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func buildChannel(cfg config.Config, logger *log.Logger) notify.Channel {
	if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" || cfg.Twilio.WhatsAppFrom == "" {
		logger.Printf("twilio credentials missing, notifications are logged only")
		return notify.NewLogChannel(logger)
	}
	channel, err := notify.NewWhatsAppChannel(
		cfg.Twilio.AccountSID,
		cfg.Twilio.AuthToken,
		cfg.Twilio.WhatsAppFrom,
		notify.WithBaseURL(cfg.Twilio.BaseURL),
	)
	if err != nil {
		logger.Printf("whatsapp channel error: %v, falling back to log channel", err)
		return notify.NewLogChannel(logger)
	}
	return channel
}

// referenceResolver adapts the repositories to the alarm handler's existence
// checks.
type referenceResolver struct {
	points  *telemetryrepo.PointRepository
	clients *directoryrepo.ClientRepository
	groups  *directoryrepo.GroupRepository
}

func (r referenceResolver) PointExists(ctx context.Context, id string) (bool, error) {
	point, err := r.points.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return point != nil, nil
}

func (r referenceResolver) ClientExists(ctx context.Context, id string) (bool, error) {
	client, err := r.clients.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return client != nil, nil
}

func (r referenceResolver) GroupExists(ctx context.Context, id string) (bool, error) {
	group, err := r.groups.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return group != nil, nil
}

// sampleSource bundles the point and sample repositories for the spreadsheet
// export.
type sampleSource struct {
	points  *telemetryrepo.PointRepository
	samples *telemetryrepo.SampleRepository
}

func (s sampleSource) GetByID(ctx context.Context, id string) (*telemetry.Point, error) {
	return s.points.GetByID(ctx, id)
}

func (s sampleSource) ListByPoint(ctx context.Context, pointID string) ([]telemetry.Sample, error) {
	return s.samples.ListByPoint(ctx, pointID)
}
