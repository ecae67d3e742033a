// Package main runs the BMM registration HTTP server with the gate WebSocket feed and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/union-bmm/backend/config"
	"github.com/union-bmm/backend/internal/auth"
	"github.com/union-bmm/backend/internal/checkin"
	"github.com/union-bmm/backend/internal/clock"
	"github.com/union-bmm/backend/internal/members"
	"github.com/union-bmm/backend/internal/middleware"
	"github.com/union-bmm/backend/internal/models"
	"github.com/union-bmm/backend/internal/notify"
	"github.com/union-bmm/backend/internal/realtime"
	"github.com/union-bmm/backend/internal/registration"
	"github.com/union-bmm/backend/internal/storage/postgres"
	"github.com/union-bmm/backend/internal/venues"
	"github.com/union-bmm/backend/pkg/database"
	"github.com/union-bmm/backend/pkg/queue"
	"github.com/union-bmm/backend/pkg/redis"
	"github.com/union-bmm/backend/pkg/response"
	"github.com/union-bmm/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	loc, err := cfg.Registration.Location()
	if err != nil {
		logger.Fatal("timezone", zap.Error(err))
	}
	region := models.Region(cfg.Registration.SpecialVoteRegion)
	if region != "" && !region.Valid() {
		logger.Fatal("special vote region", zap.String("region", string(region)))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	store := postgres.NewStore(pool)

	if cfg.Registration.VenuesFile != "" {
		dir, err := venues.LoadFile(cfg.Registration.VenuesFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
			logger.Warn("venue directory not found, keeping stored venues", zap.String("path", cfg.Registration.VenuesFile))
		case err != nil:
			logger.Fatal("venue directory", zap.Error(err))
		default:
			if err := venues.Seed(ctx, store, dir, loc, logger); err != nil {
				logger.Fatal("seed venues", zap.Error(err))
			}
		}
	}

	var evidence *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.EvidenceBucket != "" {
		evidence, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			EvidenceBucket:       cfg.AWS.EvidenceBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			evidence = nil
		}
	}

	jobQueue := queue.NewQueue(rdb.Client, logger)
	deps := registration.Deps{
		Store:    store,
		Clock:    clock.NewSystem(),
		Notifier: notify.NewQueueNotifier(jobQueue),
		Limiter:  redis.NewLimiter(rdb),
		Logger:   logger,
	}
	policy := registration.Policy{
		SpecialVoteRegion: region,
		CodeTTL:           cfg.Registration.CodeTTL,
		CodeRequestLimit:  cfg.Registration.CodeRequestLimit,
		VerifyAttempts:    cfg.Registration.VerifyAttempts,
		LimitWindow:       cfg.Registration.LimitWindow,
	}
	eligibility := registration.NewEligibility(region)
	verifier := registration.NewVerifier(deps, policy)
	machine := registration.NewStageMachine(deps, registration.NewAllocator(store), registration.NewTicketIssuer(deps), eligibility)
	processor := registration.NewCheckInProcessor(deps)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)

	// A nil *S3 must not become a non-nil interface.
	var evidenceStore members.EvidenceStore
	var evidenceReader members.EvidenceReader
	if evidence != nil {
		evidenceStore = evidence
		evidenceReader = evidence
	}
	memberHandler := members.NewHandler(verifier, machine, store, eligibility, evidenceStore, logger)
	adminMemberHandler := members.NewAdminHandler(store, machine, evidenceReader, logger)
	venueHandler := venues.NewHandler(store, machine, loc, logger)
	checkinHandler := checkin.NewHandler(processor, hub, logger)

	jwtValidate := func(token string) (staffID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.StaffID, claims.Role, nil
	}
	sessionExists := func(c *gin.Context, id uuid.UUID) bool {
		_, err := store.GetSession(c.Request.Context(), id)
		return err == nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if err := rdb.Healthy(ctx); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Member routes; the access token in the path identifies the member.
	memberHandler.Register(router)

	// Staff routes (JWT required)
	admin := router.Group("/admin")
	admin.Use(middleware.Staff(jwtService, auth.RoleAdmin)...)
	{
		admin.GET("/sessions", venueHandler.ListSessions)
		admin.POST("/assignments", venueHandler.Assign)
		admin.GET("/members/:id", adminMemberHandler.Get)
		admin.POST("/members/:id/special-vote/decision", adminMemberHandler.DecideSpecialVote)
	}
	router.POST("/checkin", append(middleware.Staff(jwtService, auth.RoleAdmin, auth.RoleGate), checkinHandler.CheckIn)...)

	// Gate dashboards (token in query; browsers cannot set headers on WebSocket upgrades)
	router.GET("/ws/sessions/:id", realtime.ServeWs(hub, logger, jwtValidate, sessionExists))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("special_vote_region", string(region)))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
