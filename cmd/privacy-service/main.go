package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sahayak-health/platform/pkg/audit"
	"github.com/sahayak-health/platform/pkg/common/config"
	"github.com/sahayak-health/platform/pkg/common/database"
	"github.com/sahayak-health/platform/pkg/common/kafka"
	"github.com/sahayak-health/platform/pkg/common/logger"
	"github.com/sahayak-health/platform/pkg/common/models"
	"github.com/sahayak-health/platform/pkg/extraction"
	"github.com/sahayak-health/platform/pkg/gateway/auth"
	"github.com/sahayak-health/platform/pkg/gateway/middleware"
	"github.com/sahayak-health/platform/pkg/guardrail"
	"github.com/sahayak-health/platform/pkg/identity"
	"github.com/sahayak-health/platform/pkg/observability/metrics"
	"github.com/sahayak-health/platform/pkg/pseudonymize"
	"github.com/sahayak-health/platform/pkg/rehydrate"
	"github.com/sahayak-health/platform/pkg/vault"
)

type PrivacyApp struct {
	engine    *pseudonymize.Engine
	gate      *guardrail.Gate
	resolver  *rehydrate.Resolver
	identity  *identity.Service
	recorder  *audit.Recorder
	jwt       *auth.JWTManager
	validator middleware.TokenValidator
	invoker   extraction.Invoker
	producer  *kafka.Producer
	consumer  *kafka.Consumer
}

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}

	auditRepo := audit.NewRepository(db)
	if err := auditRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate audit tables")
	}
	recorder := audit.NewRecorder(auditRepo, audit.RetryPolicy{
		MaxAttempts: cfg.AuditMaxAttempts,
		BaseDelay:   cfg.AuditBaseDelay,
		MaxDelay:    cfg.AuditMaxDelay,
	})

	vaultRepo := vault.NewRepository(db, recorder)
	if err := vaultRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate vault tables")
	}
	store := vault.NewCachedStore(vaultRepo, database.GetRedis(), cfg.VaultCacheTTL)

	identityRepo := identity.NewRepository(db)
	if err := identityRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate identity tables")
	}
	identitySvc := identity.NewService(identityRepo)

	checker, err := buildChecker(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build guardrail checker")
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTTTL)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to build jwt manager")
	}

	var validator middleware.TokenValidator = jwtManager
	if cfg.OIDCIssuer != "" {
		oidc, err := auth.NewOIDCAuthenticator(cfg.OIDCIssuer, cfg.OIDCClientID, cfg.OIDCClientSecret)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to build OIDC authenticator")
		}
		validator = oidc
	}

	app := &PrivacyApp{
		engine:    pseudonymize.NewEngine(store),
		gate:      guardrail.NewGate(checker, recorder),
		resolver:  rehydrate.NewResolver(store, identitySvc, recorder),
		identity:  identitySvc,
		recorder:  recorder,
		jwt:       jwtManager,
		validator: validator,
		invoker:   extraction.NewClient(cfg.ModelAPIKey, cfg.ModelBaseURL, cfg.ModelName, cfg.ModelTimeout),
	}

	app.producer = kafka.NewProducer(cfg.StructuredTopic)
	defer app.producer.Close()

	app.consumer = kafka.NewConsumer(cfg.TranscriptsTopic, "privacy-service")
	defer app.consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := app.consumer.Consume(ctx, app.processEvent); err != nil && ctx.Err() == nil {
			logger.Log.WithError(err).Fatal("consumer error")
		}
	}()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      app.router(cfg),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Privacy Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Privacy Service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}

	logger.Log.Info("Privacy Service stopped")
}

func buildChecker(cfg *config.Config) (guardrail.Checker, error) {
	if cfg.GuardrailEndpoint != "" {
		return guardrail.NewBreakerChecker(guardrail.NewHTTPChecker(cfg.GuardrailEndpoint, cfg.GuardrailTimeout)), nil
	}

	rules, err := guardrail.LoadRules(cfg.GuardrailRulesPath)
	if err != nil {
		return nil, err
	}
	return guardrail.NewRegexChecker(rules)
}

func (a *PrivacyApp) router(cfg *config.Config) http.Handler {
	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging)
	router.Use(middleware.BodyLimit(cfg.MaxRequestBody))
	router.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	router.HandleFunc("/api/v1/auth/login", a.handleLogin).Methods(http.MethodPost)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Authenticate(a.validator))
	api.HandleFunc("/principals", a.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/pseudonymize", a.handlePseudonymize).Methods(http.MethodPost)
	api.HandleFunc("/guardrail/check", a.handleGuardrailCheck).Methods(http.MethodPost)
	api.HandleFunc("/rehydrate", a.handleRehydrate).Methods(http.MethodPost)
	api.HandleFunc("/resolve", a.handleResolve).Methods(http.MethodPost)
	api.HandleFunc("/audit/{encounterID}", a.handleAuditTrail).Methods(http.MethodGet)

	return router
}

// processEvent drives the pipeline for one transcribed encounter:
// pseudonymize (mappings durably committed), guardrail, extraction model,
// publish. A guardrail block ends the encounter without retry; transient
// failures leave the message uncommitted so the consumer retries.
func (a *PrivacyApp) processEvent(ctx context.Context, event models.Event) error {
	if err := a.handleTranscript(ctx, event); err != nil {
		metrics.IncEncountersFailed()
		return err
	}
	return nil
}

func (a *PrivacyApp) handleTranscript(ctx context.Context, event models.Event) error {
	req, actor, err := parseTranscriptPayload(event.Data)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", event.ID).Error("invalid transcript payload")
		// Malformed events never become processable; drop them.
		return nil
	}

	if actor.Role == models.RoleAshaWorker && req.EncounterID != "" {
		if err := a.identity.AssignEncounter(ctx, req.EncounterID, actor.ID); err != nil {
			return err
		}
	}

	result, err := a.engine.Pseudonymize(ctx, req.Text, req.Entities, actor, req.EncounterID)
	if err != nil {
		return err
	}
	metrics.AddMappingsCreated(int64(result.Created))

	if _, err := a.gate.Inspect(ctx, result.Document.Text, actor, req.EncounterID); err != nil {
		if errors.Is(err, guardrail.ErrPIILeakDetected) {
			// Policy decision, not a transient fault: never retried.
			metrics.IncEncountersBlocked()
			return nil
		}
		return err
	}

	payload, err := a.invoker.Infer(ctx, result.Document.Text)
	if err != nil {
		return err
	}

	if err := a.producer.PublishEvent(ctx, "structured", "privacy-service", map[string]interface{}{
		"encounter_id":      req.EncounterID,
		"original_event_id": event.ID,
		"payload":           payload,
		"substitutions":     len(result.Document.Substitutions),
	}); err != nil {
		return err
	}

	metrics.IncEncountersProcessed()
	return nil
}

func parseTranscriptPayload(data map[string]interface{}) (models.PseudonymizeRequest, models.Principal, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return models.PseudonymizeRequest{}, models.Principal{}, err
	}

	var payload struct {
		models.PseudonymizeRequest
		Actor models.Principal `json:"actor"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return models.PseudonymizeRequest{}, models.Principal{}, err
	}

	if payload.Text == "" {
		return models.PseudonymizeRequest{}, models.Principal{}, fmt.Errorf("transcript text missing")
	}
	if payload.Actor.ID == "" || !payload.Actor.Role.Valid() {
		return models.PseudonymizeRequest{}, models.Principal{}, fmt.Errorf("actor missing or invalid")
	}

	return payload.PseudonymizeRequest, payload.Actor, nil
}
