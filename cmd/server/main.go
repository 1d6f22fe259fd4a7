package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tkarren/castbucket/cmd/server/middleware"
	"github.com/tkarren/castbucket/internal/auth"
	"github.com/tkarren/castbucket/internal/catalog"
	"github.com/tkarren/castbucket/internal/common"
	"github.com/tkarren/castbucket/internal/storage"
	"github.com/tkarren/castbucket/internal/upload"
	"github.com/tkarren/castbucket/pkg/config"
)

func main() {
	cfg := config.LoadFromEnv()

	setupLogging(cfg.Logging)

	log.Info().Msg("starting castbucket upload service")

	db, err := common.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	cache, err := common.NewCache(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer cache.Close()

	store, err := storage.NewLocalStore(cfg.Storage.LocalPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize storage")
	}

	authService := auth.NewService(cache, &cfg.Auth)
	catalogService := catalog.NewService(db)
	manager := upload.NewManager(store, catalogService, &cfg.Upload, &cfg.Storage)

	// The reaper runs for the lifetime of the process, independent of
	// request handling.
	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	reaper := upload.NewReaper(manager, cfg.Upload.ReapInterval)
	go reaper.Run(reaperCtx)

	router := setupRouter(authService, manager, catalogService, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	stopReaper()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	} else {
		log.Info().Msg("server shutdown complete")
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func setupRouter(authService *auth.Service, manager *upload.Manager, catalogService *catalog.Service, cfg *config.Config) *gin.Engine {
	if zerolog.GlobalLevel() == zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "castbucket",
			"time":    time.Now().UTC(),
		})
	})

	router.POST("/auth/handshake", handleHandshake(authService))

	guarded := router.Group("/upload", middleware.AuthMiddleware(authService))
	{
		guarded.POST("/chunk", handleChunkUpload(manager))
		guarded.POST("/finish", handleFinishUpload(manager))
	}

	router.GET("/recordings", handleListRecordings(catalogService))
	router.Static("/recordings/files", filepath.Join(cfg.Storage.LocalPath, cfg.Storage.RecordingsDir))

	return router
}
