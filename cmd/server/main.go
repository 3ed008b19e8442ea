package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"civid/internal/application/events"
	apphandler "civid/internal/application/handler"
	appmetrics "civid/internal/application/metrics"
	appservice "civid/internal/application/service"
	appstore "civid/internal/application/store"
	"civid/internal/audit"
	"civid/internal/blob"
	holderhandler "civid/internal/holder/handler"
	holderservice "civid/internal/holder/service"
	holderstore "civid/internal/holder/store"
	"civid/internal/issuance"
	"civid/internal/issuance/outbox"
	"civid/internal/issuance/reconciler"
	jwttoken "civid/internal/jwt_token"
	"civid/internal/platform/config"
	"civid/internal/platform/database"
	"civid/internal/platform/health"
	"civid/internal/platform/httpserver"
	kafkaplatform "civid/internal/platform/kafka"
	"civid/internal/platform/kafka/producer"
	"civid/internal/platform/logger"
	"civid/internal/platform/metrics"
	"civid/internal/platform/middleware"
	"civid/internal/platform/redis"
	"civid/internal/platform/tracer"
	"civid/internal/vision"
)

const (
	issuerBaseURL = "http://localhost:8080"
	audience      = "civid-api"
	tokenTTL      = 15 * time.Minute
)

// main wires dependencies and keeps the server lifecycle small. Business
// logic lives in the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing civid",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"auto_approve", cfg.Workflow.AutoApprove,
	)

	// Persistence. A missing DATABASE_URL falls back to in-memory stores so
	// the service can run standalone in development.
	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database init failed", "error", err)
		os.Exit(1)
	}

	var (
		applications appstore.Store
		holders      holderstore.Store
		auditStore   audit.Store
		obligations  outbox.Store
	)
	if pool != nil {
		applications = appstore.NewPostgres(pool.DB())
		holders = holderstore.NewPostgres(pool.DB())
		auditStore = audit.NewPostgresStore(pool.DB())
		obligations = outbox.NewPostgresStore(pool.DB())
		log.Info("using postgres stores")
	} else {
		applications = appstore.NewMemory()
		holders = holderstore.NewMemory()
		auditStore = audit.NewMemoryStore()
		obligations = outbox.NewMemoryStore()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	var kafkaProducer *producer.Producer
	if cfg.Kafka.Brokers != "" {
		producerCfg := kafkaplatform.DefaultProducerConfig()
		producerCfg.Brokers = cfg.Kafka.Brokers
		kafkaProducer, err = producer.New(producer.Config{
			Brokers:         producerCfg.Brokers,
			Acks:            producerCfg.Acks,
			Retries:         producerCfg.Retries,
			DeliveryTimeout: producerCfg.DeliveryTimeout,
		}, log)
		if err != nil {
			log.Error("kafka producer init failed", "error", err)
			os.Exit(1)
		}
	}

	// Audit trail: persisted always, mirrored to Kafka when configured.
	auditOpts := []audit.PublisherOption{
		audit.WithPublisherLogger(log),
		audit.WithAsyncBuffer(1024),
	}
	if kafkaProducer != nil {
		auditOpts = append(auditOpts, audit.WithSink(audit.NewKafkaSink(kafkaProducer, cfg.Kafka.AuditTopic)))
	}
	auditor := audit.NewPublisher(auditStore, auditOpts...)

	signer := blob.NewSigner(cfg.Blob.BaseURL, cfg.Blob.SigningKey, cfg.Blob.URLTTL)

	issuanceMetrics := issuance.NewMetrics()
	generator := issuance.NewGenerator(cfg.Workflow.UINPrefix, holders.ExistsUIN,
		issuance.WithMetrics(issuanceMetrics),
	)

	workflowMetrics := appmetrics.New()
	serviceOpts := []appservice.Option{
		appservice.WithObligationQueue(obligations),
		appservice.WithMetrics(workflowMetrics),
		appservice.WithTracer(tracer.NewOTel()),
		appservice.WithManualReviewThreshold(cfg.Workflow.ManualReviewThreshold),
		appservice.WithCredentialValidity(cfg.Workflow.CredentialValidity),
	}
	if cfg.Workflow.AutoApprove {
		serviceOpts = append(serviceOpts, appservice.WithAutoApprove(cfg.Workflow.AutoApproveThreshold))
	}
	if cfg.Vision.BaseURL != "" {
		serviceOpts = append(serviceOpts, appservice.WithVerifier(buildVerifier(cfg, signer, redisClient, log)))
	} else {
		log.Warn("VISION_BASE_URL not set, all submissions go to manual review")
	}
	if kafkaProducer != nil {
		serviceOpts = append(serviceOpts, appservice.WithIssuedPublisher(events.NewKafkaPublisher(kafkaProducer, cfg.Kafka.IssuedTopic)))
	}

	workflow := appservice.NewService(applications, holders, generator, auditor, log, serviceOpts...)
	registry := holderservice.NewService(holders, auditor, log)

	repair := reconciler.New(obligations, applications, holders, cfg.Workflow.CredentialValidity, log,
		reconciler.WithMetrics(issuanceMetrics),
	)

	tokens := jwttoken.NewService(cfg.JWTSigningKey, issuerBaseURL, audience, tokenTTL)
	httpMetrics := metrics.New()

	router := buildRouter(cfg, log, httpMetrics, tokens, repair,
		apphandler.New(workflow, log),
		holderhandler.New(registry, log),
		blob.NewHandler(signer),
		buildHealth(cfg, pool, redisClient),
	)

	srv := httpserver.New(cfg.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := repair.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}

	auditor.Close()
	if kafkaProducer != nil {
		kafkaProducer.Close() //nolint:errcheck // flush is best-effort at exit
	}
	if redisClient != nil {
		redisClient.Close() //nolint:errcheck
	}
	pool.Close() //nolint:errcheck

	log.Info("server stopped")
}

func buildVerifier(cfg config.Config, signer *blob.Signer, redisClient *redis.Client, log *slog.Logger) *vision.Verifier {
	client := vision.NewHTTPClient(cfg.Vision.BaseURL, cfg.Vision.APIKey, cfg.Vision.Timeout, log)

	var cache vision.ExtractionCache
	if redisClient != nil {
		cache = vision.NewRedisCache(redisClient.Client, time.Hour, log)
	} else {
		cache = vision.NewMemoryCache(time.Hour)
	}

	return vision.NewVerifier(client, cache, signer, cfg.Vision.FaceCollection, log)
}

func buildHealth(cfg config.Config, pool *database.Pool, redisClient *redis.Client) *health.Handler {
	h := health.New(cfg.Environment)
	if pool != nil {
		h.RegisterCheck("database", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pool.Health(ctx)
		})
	}
	if redisClient != nil {
		h.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}
	if cfg.Kafka.Brokers != "" {
		checker := kafkaplatform.NewHealthChecker(cfg.Kafka.Brokers)
		h.RegisterCheck("kafka", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return checker.Check(ctx)
		})
	}
	return h
}

func buildRouter(
	cfg config.Config,
	log *slog.Logger,
	httpMetrics *metrics.Metrics,
	tokens middleware.TokenValidator,
	repair *reconciler.Reconciler,
	applicationsHandler *apphandler.Handler,
	holdersHandler *holderhandler.Handler,
	documentsHandler *blob.Handler,
	healthHandler *health.Handler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log, httpMetrics))
	r.Use(middleware.BodyLimit(1 << 20))
	r.Use(middleware.Timeout(30 * time.Second))

	healthHandler.Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.RequireAuth(tokens, httpMetrics, log))
		applicationsHandler.Routes(r)
		holdersHandler.Routes(r)
		r.Get("/documents/url", documentsHandler.SignedURL)
	})

	// Operator surface: shared-token auth, no subject identity.
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireAdminToken(cfg.AdminTokenHash, log))
		r.Post("/reconcile", func(w http.ResponseWriter, req *http.Request) {
			repair.Sweep(req.Context())
			w.WriteHeader(http.StatusAccepted)
		})
	})

	return r
}
