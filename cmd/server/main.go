package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/twmb/franz-go/pkg/kgo"

	"parity/internal/access"
	assistantclient "parity/internal/assistant/client"
	assistanthandler "parity/internal/assistant/handler"
	assistantservice "parity/internal/assistant/service"
	audithandler "parity/internal/audit/handler"
	auditmetrics "parity/internal/audit/metrics"
	"parity/internal/audit/query"
	"parity/internal/audit/recorder"
	auditmemory "parity/internal/audit/store/memory"
	auditpostgres "parity/internal/audit/store/postgres"
	"parity/internal/audit/stream"
	employeehandler "parity/internal/employee/handler"
	employeeservice "parity/internal/employee/service"
	jwttoken "parity/internal/jwt_token"
	"parity/internal/payequity/aggregate"
	payequityhandler "parity/internal/payequity/handler"
	payequitymetrics "parity/internal/payequity/metrics"
	payequityservice "parity/internal/payequity/service"
	payequitystore "parity/internal/payequity/store"
	"parity/internal/platform/config"
	"parity/internal/platform/httpserver"
	"parity/internal/platform/logger"
	platformmetrics "parity/internal/platform/metrics"
	platformredis "parity/internal/platform/redis"
	ratelimitmw "parity/internal/ratelimit/middleware"
	"parity/internal/ratelimit/store/bucket"
	httptransport "parity/internal/transport/http"
	"parity/pkg/platform/circuit"
	"parity/pkg/platform/lease"
	"parity/pkg/platform/tx"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// storage is the set of stores the services run on. db is nil when running
// in memory.
type storage struct {
	db    *sql.DB
	audit interface {
		recorder.Store
		query.Reader
	}
	employees interface {
		employeeservice.Repository
		payequityservice.EmployeeReader
	}
	snapshots  payequityservice.SnapshotStore
	transactor tx.Transactor
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	checks := map[string]httptransport.HealthCheck{}
	var cleanup []func()
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}()

	stores, err := openStorage(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	if stores.db != nil {
		cleanup = append(cleanup, func() { _ = stores.db.Close() })
		checks["postgres"] = stores.db.PingContext
	}

	var (
		recomputeLease lease.Lease       = lease.NewLocal()
		limitStore     ratelimitmw.Store = bucket.NewInMemoryBucketStore()
	)
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		cleanup = append(cleanup, func() { _ = redisClient.Close() })
		checks["redis"] = redisClient.Health
		recomputeLease = redisClient.Lease(log)
		limitStore = redisClient.RateLimitStore()
		log.Info("using redis for the recompute lease and rate limits")
	}

	auditMetrics := auditmetrics.New()
	recorderOpts := []recorder.Option{
		recorder.WithLogger(log),
		recorder.WithMetrics(auditMetrics),
		recorder.WithIdempotencyCache(cfg.Audit.IdempotencyCacheSize, cfg.Audit.IdempotencyCacheTTL),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := stream.NewClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, kafkaClient.Close)
		checks["kafka"] = func(ctx context.Context) error { return pingKafka(ctx, kafkaClient) }
		topicCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := stream.EnsureTopic(topicCtx, kafkaClient, cfg.Kafka.Topic); err != nil {
			log.Warn("could not ensure audit topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		cancel()
		publisher, err := stream.NewPublisher(kafkaClient, cfg.Kafka.Topic)
		if err != nil {
			return err
		}
		recorderOpts = append(recorderOpts, recorder.WithPublisher(publisher))
		log.Info("publishing audit entries to kafka", "topic", cfg.Kafka.Topic)
	}

	rec, err := recorder.New(stores.audit, recorderOpts...)
	if err != nil {
		return fmt.Errorf("audit recorder: %w", err)
	}

	policy := access.NewEvaluator()

	auditQuery, err := query.New(stores.audit, policy,
		query.WithLogger(log),
		query.WithMetrics(auditMetrics),
		query.WithRecorder(rec),
	)
	if err != nil {
		return fmt.Errorf("audit query service: %w", err)
	}

	thresholds := aggregate.Thresholds{
		MinGroupSize: cfg.PayEquity.MinGroupSize,
		GreenBelow:   cfg.PayEquity.GreenBelow,
		YellowMax:    cfg.PayEquity.YellowMax,
	}
	if err := thresholds.Validate(); err != nil {
		return err
	}
	payEquity, err := payequityservice.New(stores.employees, stores.snapshots, policy,
		aggregate.New(thresholds, aggregate.WithLogger(log)),
		payequityservice.WithLogger(log),
		payequityservice.WithMetrics(payequitymetrics.New()),
		payequityservice.WithLease(recomputeLease, cfg.PayEquity.LeaseTTL),
		payequityservice.WithAuditor(rec),
	)
	if err != nil {
		return fmt.Errorf("pay equity service: %w", err)
	}

	employees, err := employeeservice.New(stores.employees, policy, rec,
		employeeservice.WithLogger(log),
		employeeservice.WithTransactor(stores.transactor),
	)
	if err != nil {
		return fmt.Errorf("employee service: %w", err)
	}

	apis := []httptransport.Routes{
		audithandler.New(auditQuery, log),
		payequityhandler.New(payEquity, log),
		employeehandler.New(employees, log),
	}

	if cfg.Assistant.Endpoint != "" {
		generator, err := assistantclient.New(cfg.Assistant.Endpoint, cfg.Assistant.APIKey,
			assistantclient.WithHTTPClient(&http.Client{Timeout: cfg.Assistant.Timeout}),
			assistantclient.WithAttempts(cfg.Assistant.Attempts),
			assistantclient.WithBreaker(circuit.New("assistant-generator",
				circuit.WithFailureThreshold(cfg.Assistant.BreakerFailures),
				circuit.WithCooldown(cfg.Assistant.BreakerCooldown),
			)),
			assistantclient.WithLogger(log),
		)
		if err != nil {
			return fmt.Errorf("assistant client: %w", err)
		}
		assistant, err := assistantservice.New(payEquity, generator, policy,
			assistantservice.WithLogger(log),
			assistantservice.WithAuditor(rec),
		)
		if err != nil {
			return fmt.Errorf("assistant service: %w", err)
		}
		limiter := ratelimitmw.New(limitStore, cfg.Assistant.RateLimit, cfg.Assistant.RateWindow, log)
		apis = append(apis, assistanthandler.New(assistant, log,
			assistanthandler.WithRateLimit(limiter.PerUser("assistant")),
		))
	} else {
		log.Warn("ASSISTANT_ENDPOINT not set; assistant routes disabled")
	}

	jwtService := jwttoken.NewJWTService(cfg.JWT.SigningKey, cfg.JWT.Issuer, cfg.JWT.Audience)
	router := httptransport.NewRouter(httptransport.Config{
		Logger:       log,
		Metrics:      platformmetrics.New(),
		Validator:    jwttoken.NewJWTServiceAdapter(jwtService),
		MetricsToken: cfg.MetricsToken,
		HealthChecks: checks,
		APIs:         apis,
	})

	srv := httpserver.New(cfg.Addr, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info("starting parity", "addr", cfg.Addr, "postgres", stores.db != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

// openStorage selects Postgres when a database URL is configured and the
// in-memory stores otherwise.
func openStorage(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*storage, error) {
	if cfg.URL == "" {
		log.Warn("DATABASE_URL not set; using in-memory stores")
		return &storage{
			audit:      auditmemory.New(),
			employees:  payequitystore.NewInMemoryEmployees(),
			snapshots:  payequitystore.NewInMemorySnapshots(),
			transactor: tx.Direct{},
		}, nil
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &storage{
		db:         db,
		audit:      auditpostgres.New(db),
		employees:  payequitystore.NewPostgresEmployees(db),
		snapshots:  payequitystore.NewPostgresSnapshots(db),
		transactor: tx.NewPostgres(db),
	}, nil
}

func pingKafka(ctx context.Context, client *kgo.Client) error {
	return client.Ping(ctx)
}
