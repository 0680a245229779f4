package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-fees-api/api/swagger"
	"github.com/noah-isme/sma-fees-api/internal/handler"
	"github.com/noah-isme/sma-fees-api/internal/middleware"
	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	"github.com/noah-isme/sma-fees-api/internal/service"
	"github.com/noah-isme/sma-fees-api/pkg/cache"
	"github.com/noah-isme/sma-fees-api/pkg/config"
	"github.com/noah-isme/sma-fees-api/pkg/database"
	"github.com/noah-isme/sma-fees-api/pkg/jobs"
	"github.com/noah-isme/sma-fees-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-fees-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-fees-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-fees-api/pkg/storage"
)

// @title SMA Fees API
// @version 1.0.0
// @description School fee ledger: fee catalog, subscriptions, credit allocation and recurring generation
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, dashboard caching disabled", zap.Error(err))
		redisClient = nil
	}

	// Repositories.
	feeRepo := repository.NewFeeRepository(db)
	structureRepo := repository.NewFeeStructureRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	userRepo := repository.NewUserRepository(db)
	statementRepo := repository.NewStatementRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		Secret:             cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	studentSvc := service.NewStudentService(studentRepo, structureRepo, subscriptionRepo, nil, logr)
	structureSvc := service.NewFeeStructureService(structureRepo, nil, logr)
	subscriptionSvc := service.NewSubscriptionService(subscriptionRepo, studentRepo, structureRepo, nil, logr)
	feeSvc := service.NewFeeService(feeRepo, studentRepo, studentRepo, nil, logr)
	paymentSvc := service.NewPaymentService(feeRepo, studentRepo, metricsSvc, nil, logr)
	generationSvc := service.NewGenerationService(subscriptionRepo, feeRepo, metricsSvc, logr)
	dashboardSvc := service.NewDashboardService(feeRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var statementSvc *service.StatementService
	var statementQueue *jobs.Queue
	if cfg.Statements.Enabled {
		store, err := storage.NewLocalStorage(cfg.Statements.StorageDir)
		if err != nil {
			logr.Fatal("failed to init statement storage", zap.Error(err))
		}
		signer := storage.NewSignedURLSigner(cfg.Statements.SignedURLSecret, cfg.Statements.SignedURLTTL)
		statementSvc = service.NewStatementService(statementRepo, feeRepo, studentRepo, store, signer, service.StatementConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Statements.SignedURLTTL,
		}, logr)
		statementQueue = jobs.NewQueue("statements", statementSvc.Process, jobs.QueueConfig{
			Workers:    cfg.Statements.WorkerConcurrency,
			MaxRetries: cfg.Statements.WorkerRetries,
			Logger:     logr,
		})
		statementSvc.SetQueue(statementQueue)
		statementQueue.Start(ctx)
		defer statementQueue.Stop()

		go func() {
			ticker := time.NewTicker(cfg.Statements.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					statementSvc.Cleanup(ctx)
				}
			}
		}()
	}

	if cfg.Generation.Enabled {
		go func() {
			ticker := time.NewTicker(cfg.Generation.Interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					passCtx, cancel := context.WithTimeout(ctx, cfg.Generation.PassTimeout)
					if _, err := generationSvc.RunPass(passCtx, time.Now().UTC()); err != nil {
						logr.Error("scheduled generation pass failed", zap.Error(err))
					}
					cancel()
				}
			}
		}()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	userHandler := handler.NewUserHandler(userSvc)
	studentHandler := handler.NewStudentHandler(studentSvc, feeSvc, paymentSvc)
	structureHandler := handler.NewFeeStructureHandler(structureSvc)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionSvc)
	feeHandler := handler.NewFeeHandler(feeSvc)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	generationHandler := handler.NewGenerationHandler(generationSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	secured := api.Group("")
	secured.Use(middleware.JWT(authSvc))

	anyRole := middleware.RequireRoles(models.RoleAdmin, models.RoleBursar, models.RoleViewer)
	bursarUp := middleware.RequireRoles(models.RoleAdmin, models.RoleBursar)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	users := secured.Group("/users", adminOnly)
	{
		users.GET("", userHandler.List)
		users.GET("/:id", userHandler.Get)
		users.POST("", middleware.Audit(userRepo, "user.create", "user"), userHandler.Create)
	}

	students := secured.Group("/students")
	{
		students.GET("", anyRole, studentHandler.List)
		students.GET("/:id", anyRole, studentHandler.Get)
		students.GET("/:id/ledger", anyRole, studentHandler.Ledger)
		students.GET("/:id/credits", anyRole, studentHandler.Credits)
		students.POST("", adminOnly, middleware.Audit(userRepo, "student.create", "student"), studentHandler.Create)
		students.PUT("/:id", adminOnly, middleware.Audit(userRepo, "student.update", "student"), studentHandler.Update)
	}

	structures := secured.Group("/fee-structures")
	{
		structures.GET("", anyRole, structureHandler.List)
		structures.GET("/:id", anyRole, structureHandler.Get)
		structures.POST("", adminOnly, middleware.Audit(userRepo, "fee_structure.create", "fee_structure"), structureHandler.Create)
		structures.PUT("/:id", adminOnly, middleware.Audit(userRepo, "fee_structure.update", "fee_structure"), structureHandler.Update)
		structures.DELETE("/:id", adminOnly, middleware.Audit(userRepo, "fee_structure.delete", "fee_structure"), structureHandler.Delete)
	}

	subscriptions := secured.Group("/subscriptions")
	{
		subscriptions.GET("", anyRole, subscriptionHandler.List)
		subscriptions.POST("", adminOnly, middleware.Audit(userRepo, "subscription.create", "subscription"), subscriptionHandler.Create)
		subscriptions.PUT("/:id/active", adminOnly, middleware.Audit(userRepo, "subscription.set_active", "subscription"), subscriptionHandler.SetActive)
		subscriptions.PUT("/:id/amount", adminOnly, middleware.Audit(userRepo, "subscription.set_amount", "subscription"), subscriptionHandler.SetCustomAmount)
		subscriptions.DELETE("/:id", adminOnly, middleware.Audit(userRepo, "subscription.delete", "subscription"), subscriptionHandler.Delete)
	}

	fees := secured.Group("/fees")
	{
		fees.GET("", anyRole, feeHandler.List)
		fees.GET("/:id", anyRole, feeHandler.Get)
		fees.POST("", bursarUp, middleware.Audit(userRepo, "fee.create", "fee"), feeHandler.Create)
		fees.POST("/bulk", bursarUp, middleware.Audit(userRepo, "fee.bulk_create", "fee"), feeHandler.BulkCreate)
		fees.DELETE("/:id", adminOnly, middleware.Audit(userRepo, "fee.delete", "fee"), feeHandler.Delete)
	}

	secured.POST("/payments", bursarUp, middleware.Audit(userRepo, "credit.allocate", "credit"), paymentHandler.Allocate)
	secured.DELETE("/credits/:id", adminOnly, middleware.Audit(userRepo, "credit.delete", "credit"), paymentHandler.DeleteCredit)

	if cfg.Dashboard.Enabled {
		secured.GET("/dashboard/collection", anyRole, dashboardHandler.Collection)
	}

	secured.POST("/admin/generation/run", adminOnly, middleware.Audit(userRepo, "generation.run", "generation"), generationHandler.Run)

	if statementSvc != nil {
		statementHandler := handler.NewStatementHandler(statementSvc)
		secured.POST("/statements", anyRole, statementHandler.Create)
		secured.GET("/statements/:id", anyRole, statementHandler.Status)
		// Download authenticates with the signed token itself.
		api.GET("/statements/download/:token", statementHandler.Download)
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}
