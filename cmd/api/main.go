package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"ledgerly/internal/blob"
	"ledgerly/internal/cache"
	"ledgerly/internal/config"
	"ledgerly/internal/database"
	"ledgerly/internal/handlers"
	"ledgerly/internal/logger"
	"ledgerly/internal/middleware"
	"ledgerly/internal/notify"
	"ledgerly/internal/services"
	"ledgerly/internal/tasks"
	"ledgerly/internal/validator"
)

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()
	ctx := context.Background()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Register custom request validators
	validator.Register()

	// Create database manager and run migrations
	dbManager, err := database.NewManager(cfg)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	db := dbManager.DB()

	// Cache: Redis when configured, in-process otherwise
	var cacheStore cache.Cache
	if cfg.RedisAddr != "" {
		redisCache, err := cache.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		cacheStore = redisCache
		log.Infof("Using Redis cache at %s", cfg.RedisAddr)
	} else {
		cacheStore = cache.NewMemory()
		log.Info("Redis not configured, using in-process cache")
	}

	// Blob store: GCS when configured, in-process otherwise
	var blobStore blob.Store
	if cfg.GCSBucket != "" {
		gcs, err := blob.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			return fmt.Errorf("failed to create GCS client: %w", err)
		}
		blobStore = gcs
		log.Infof("Using GCS bucket %s for uploads", cfg.GCSBucket)
	} else {
		blobStore = blob.NewMemory()
		log.Warn("GCS not configured, uploads are held in memory")
	}

	// Websocket hub for progress and result events
	hub := notify.NewHub()
	go hub.Run()

	// Background task pool
	pool := tasks.NewPool(cfg.WorkerCount, cfg.TaskQueueSize, cfg.RetryBackoff)
	defer pool.Stop()

	// Initialize services
	categorizationService := services.NewCategorizationService(db, cacheStore, hub, cfg.BulkBatchSize)
	anomalyService := services.NewAnomalyService(db, cacheStore, hub, cfg.BulkBatchSize)
	importService := services.NewImportService(db, blobStore, cacheStore, hub, pool, categorizationService, anomalyService, cfg)
	transactionService := services.NewTransactionService(db, cacheStore, hub, categorizationService, anomalyService, cfg.BulkBatchSize)
	categoryService := services.NewCategoryService(db, cacheStore)

	// Initialize handlers
	ruleHandler := handlers.NewRuleHandler(categorizationService)
	transactionHandler := handlers.NewTransactionHandler(transactionService, importService, categorizationService, anomalyService)
	anomalyHandler := handlers.NewAnomalyHandler(anomalyService)
	importHandler := handlers.NewImportHandler(importService)
	categoryHandler := handlers.NewCategoryHandler(categoryService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group, all owner-scoped
	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuthMiddleware())

	// Websocket upgrade for progress events
	v1.GET("/ws", func(c *gin.Context) {
		userID, exists := c.Get("userID")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}
		if err := hub.ServeWS(c.Writer, c.Request, userID.(string)); err != nil {
			log.Warnw("websocket upgrade failed", "error", err)
		}
	})

	// Category routes
	categories := v1.Group("/categories")
	categories.POST("", categoryHandler.CreateCategory)
	categories.GET("", categoryHandler.ListCategories)
	categories.DELETE("/:id", categoryHandler.DeleteCategory)

	// Rule routes
	rules := v1.Group("/rules")
	rules.POST("", ruleHandler.CreateRule)
	rules.GET("", ruleHandler.ListRules)
	rules.POST("/apply", ruleHandler.ApplyRules)
	rules.POST("/activate", ruleHandler.SetRulesActive)
	rules.POST("/reorder", ruleHandler.ReorderRules)
	rules.POST("/delete", ruleHandler.DeleteRules)

	// Transaction routes
	transactions := v1.Group("/transactions")
	transactions.POST("", transactionHandler.CreateTransaction)
	transactions.GET("", transactionHandler.ListTransactions)
	transactions.GET("/:id", transactionHandler.GetTransaction)
	transactions.POST("/bulk", transactionHandler.BulkInsert)
	transactions.POST("/bulk-categorize", transactionHandler.BulkCategorize)
	transactions.POST("/bulk-delete", transactionHandler.BulkDelete)
	transactions.POST("/detect-anomalies", transactionHandler.DetectAnomalies)

	// Anomaly routes
	anomalies := v1.Group("/anomalies")
	anomalies.GET("", anomalyHandler.ListAnomalies)
	anomalies.GET("/summary", anomalyHandler.Summary)
	anomalies.GET("/patterns", anomalyHandler.SpendingPatterns)
	anomalies.POST("/resolve", anomalyHandler.Resolve)

	// Import routes
	imports := v1.Group("/imports")
	imports.POST("/presign", importHandler.PresignUpload)
	imports.POST("", importHandler.CreateImport)
	imports.GET("", importHandler.ListImports)
	imports.GET("/:id", importHandler.GetImport)

	// Dashboard routes
	dashboard := v1.Group("/dashboard")
	dashboard.GET("/summary", transactionHandler.DashboardSummary)
	dashboard.GET("/category-stats", transactionHandler.CategoryStats)

	log.Infof("Starting Ledgerly server on port %s", cfg.Port)
	return router.Run(":" + cfg.Port)
}
