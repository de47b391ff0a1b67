package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/mfg-ops/ordrefab/config"
	"github.com/mfg-ops/ordrefab/controllers"
	"github.com/mfg-ops/ordrefab/middleware"
	"github.com/mfg-ops/ordrefab/services"
	"go.uber.org/zap"
)

func main() {
	// bootstrap logger until the configured level is known
	boot, err := config.NewLogger("")
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load()
	if err != nil {
		boot.Fatal("failed to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal("invalid configuration", zap.Error(err))
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		boot.Fatal("failed to create logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()
	logger.Info("starting order API server", zap.String("env_file", cfg.EnvFile))

	// Connect to database
	if err := config.ConnectDatabase(cfg.DatabaseURL, logger.Named("database")); err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := config.Migrate(db); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}
	logger.Info("database migration completed")

	if cfg.SeedDemoData {
		if err := services.SeedCatalog(db, logger.Named("seed")); err != nil {
			logger.Fatal("failed to seed catalog", zap.Error(err))
		}
	}

	router := setupRouter(cfg, logger)

	// Start server
	port := ":" + cfg.Port
	logger.Info("server listening", zap.String("addr", port), zap.String("env", cfg.GoEnv))
	if err := router.Run(port); err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}
}

// setupRouter builds the gin engine with CORS, request logging, JWT
// authentication and every route
func setupRouter(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(logger))
	router.Use(cors.New(corsConfig(cfg)))

	controllers.RegisterRoutes(router, cfg.PublicPathPrefix,
		middleware.EnsureValidToken(cfg, logger.Named("auth")),
		middleware.LoadUser(config.GetDB, logger.Named("auth")),
	)
	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	if len(cfg.CORSAllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		return corsCfg
	}
	for _, origin := range cfg.CORSAllowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			return corsCfg
		}
	}
	corsCfg.AllowOrigins = cfg.CORSAllowedOrigins
	return corsCfg
}
