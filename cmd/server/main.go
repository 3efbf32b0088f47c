package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	swagger "github.com/gofiber/swagger"

	"github.com/fieldline/fieldgraph/internal/config"
	"github.com/fieldline/fieldgraph/internal/database"
	"github.com/fieldline/fieldgraph/internal/handlers"
	"github.com/fieldline/fieldgraph/internal/logger"
	"github.com/fieldline/fieldgraph/internal/middleware"
	"github.com/fieldline/fieldgraph/internal/services"
	"github.com/fieldline/fieldgraph/internal/types"
	"github.com/fieldline/fieldgraph/internal/utils"

	_ "github.com/fieldline/fieldgraph/docs/api" // Swagger docs
)

// @title FieldGraph API
// @version 1.0.0
// @description Idempotent, versioned asset graph service for construction project data
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url https://github.com/fieldline/fieldgraph

// @host localhost:3000
// @BasePath /api
// @schemes http https

// @securityDefinitions.apikey CookieAuth
// @in cookie
// @name cookie_session

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	// Connect to database (writer pool)
	writeDB, err := database.Connect(cfg)
	if err != nil {
		zlog.Fatal("failed to connect to write database", "error", err)
	}
	defer database.Close(writeDB)

	// Connect to database (read pool)
	readDB, err := database.ConnectReadOnly(cfg)
	if err != nil {
		zlog.Fatal("failed to connect to read database", "error", err)
	}
	defer database.Close(readDB)

	// Run auto-migrations on the writer pool
	if err := database.AutoMigrate(writeDB); err != nil {
		zlog.Fatal("failed to run migrations", "error", err)
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(compress.New())

	// Prometheus metrics
	prometheus := fiberprometheus.New("fieldgraph")
	prometheus.RegisterAt(app, "/metrics")
	app.Use(prometheus.Middleware)

	// Swagger documentation
	app.Get("/swagger/*", swagger.HandlerDefault)

	// API routes under /api
	api := app.Group("/api")

	// Version middleware
	api.Use(middleware.VersionMiddleware())

	// Health endpoint (unauthenticated)
	api.Get("/health", func(c *fiber.Ctx) error {
		result := services.HealthCheck(cfg, writeDB, zlog)
		status := fiber.StatusOK
		if result.Status != "healthy" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(result)
	})

	// Graph routes
	graph := api.Group("/graph")
	graph.Use(middleware.AuthorizerInit(cfg, zlog))

	coordinator := services.NewUpsertCoordinator(writeDB, zlog)
	gateway := services.NewQueryGateway(readDB, zlog)
	graphHandler := &handlers.GraphHandler{Coordinator: coordinator, Gateway: gateway}

	// Read routes
	graph.Get("/assets/:id/audit", middleware.AuthReader(), graphHandler.GetAuditTrail)
	graph.Get("/assets/:id", middleware.AuthReader(), graphHandler.GetAsset)
	graph.Get("/assets", middleware.AuthReader(), graphHandler.ListAssets)
	graph.Get("/edges", middleware.AuthReader(), graphHandler.ListEdges)

	// Write routes
	graph.Post("/assets", middleware.AuthWriter(), graphHandler.UpsertAsset)
	graph.Delete("/assets/:id", middleware.AuthWriter(), graphHandler.DeleteAsset)
	graph.Delete("/edges", middleware.AuthWriter(), graphHandler.DeleteEdge)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"status":    fiber.StatusNotFound,
			"message":   "[404] Resource Not Found",
			"ok":        false,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"url":       c.OriginalURL(),
		})
	})

	// Graceful shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		zlog.Info("gracefully shutting down")
		_ = app.Shutdown()
	}()

	zlog.Info("starting server", "port", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		zlog.Fatal("failed to start server", "error", err)
	}

	zlog.Info("server stopped")
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	var ge *types.GraphError
	if errors.As(err, &ge) {
		return utils.GraphErrorResponse(c, err)
	}

	code := fiber.StatusInternalServerError
	message := err.Error()
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return utils.ErrorResponse(c, message, code, types.KindStorage)
}
