package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/playchess/backend/internal/admission"
	"github.com/playchess/backend/internal/api"
	"github.com/playchess/backend/internal/config"
	"github.com/playchess/backend/internal/database"
	"github.com/playchess/backend/internal/matcher"
	"github.com/playchess/backend/internal/middleware"
	"github.com/playchess/backend/internal/migrations"
	"github.com/playchess/backend/internal/notify"
	"github.com/playchess/backend/internal/profile"
	"github.com/playchess/backend/internal/queue"
	"github.com/playchess/backend/internal/redis"
	"github.com/playchess/backend/internal/session"
	"github.com/playchess/backend/internal/ws"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Initialize configuration
	cfg := config.Load()

	// Initialize database
	db, err := database.Connect(cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Run migrations on start if requested
	if os.Getenv("MIGRATE_ON_START") == "true" {
		log.Println("Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	// Initialize Redis
	rdb, err := redis.Connect(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "matcher"
	}

	// Explicit construction: every dependency is built here and passed down.
	stream := queue.NewStream(rdb, cfg.MatcherShards, hostname)
	store := queue.NewPGStore(db)
	sessions := session.NewPGStore(db)
	profiles := profile.NewPGStore(db)

	// Relay committed queue mutations from the outbox to the change feed
	outbox := queue.NewOutbox(db, stream)
	go outbox.Run(context.Background())

	hub := ws.NewHub()
	go hub.Run()

	notifier := notify.New(sessions, hub)
	gateway := admission.New(store, profiles, sessions, cfg)

	// Start matcher shard workers consuming the change stream
	m := matcher.New(store, stream, notifier, cfg)
	m.Start(context.Background())

	// Set up Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	router.Use(middleware.CORSMiddleware(cfg))

	api.SetupRoutes(router, db, gateway, hub, sessions, cfg)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting PlayChess matchmaking server on port %s", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
