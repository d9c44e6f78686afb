package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papergen/internal/config"
	"papergen/internal/database"
	"papergen/internal/handlers"
	"papergen/internal/middleware"
	"papergen/internal/pipeline"
	"papergen/internal/repository"
	"papergen/internal/router"
	"papergen/internal/services"
	"papergen/internal/websocket"
	"papergen/internal/worker"
)

func main() {
	log.Println("🚀 Starting Papergen Server...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		log.Fatal("✗ DATABASE_URL is required in server mode")
	}
	if cfg.RedisURL == "" {
		log.Fatal("✗ REDIS_URL is required in server mode")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("✗ JWT_SECRET is required in server mode")
	}
	if cfg.GeminiAPIKey == "" {
		log.Fatal("✗ GEMINI_API_KEY is required in server mode")
	}
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	paperRepo := repository.NewPaperRepo(pool)
	jobRepo := repository.NewJobRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	geminiService, err := services.NewGeminiService(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatalf("✗ Gemini client initialization failed: %v", err)
	}
	defer geminiService.Close()
	log.Printf("✓ Gemini client initialized (model: %s)", cfg.GeminiModel)

	// ──── Initialize Handlers ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	paperHandler := handlers.NewPaperHandler(paperRepo, jobRepo, redisClients.Queue, jwtAuth, 100)
	jobHandler := handlers.NewJobHandler(jobRepo)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(
		redisClients.Queue,
		geminiService,
		paperRepo,
		jobRepo,
		cfg.OutputDir,
		cfg.WorkerCount,
		pipeline.Options{
			TargetCount:         cfg.TargetCount,
			BasicPercent:        cfg.BasicPercent,
			IntermediatePercent: cfg.IntermediatePercent,
		},
	)
	workerPool.Start()
	log.Printf("✓ Worker pool started (%d goroutines)", cfg.WorkerCount)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Step 8: Start HTTP Server ────
	r := router.New(paperHandler, jobHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ Papergen ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
