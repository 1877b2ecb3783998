package main

import (
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"stride/internal/api"
	"stride/internal/apperr"
	"stride/internal/progress"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
)

func main() {
	// The store handle opens lazily and can be reset after transient
	// failures; nothing else in the process holds a raw *sql.DB.
	handle := store.NewHandle("./data/stride.db")
	db, err := handle.DB()
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}
	defer handle.Close()

	// Run migrations only if explicitly enabled (opt-in for safety)
	runMigrations := os.Getenv("RUN_MIGRATIONS") == "true"
	if runMigrations {
		log.Println("Running database migrations...")
		if err := api.MigrateAddWeekStart(db); err != nil {
			log.Printf("Migration error (week start): %v", err)
		}
		if err := api.MigrateAddNudgeColumns(db); err != nil {
			log.Printf("Migration error (nudge columns): %v", err)
		}
	} else {
		log.Println("Migrations skipped (set RUN_MIGRATIONS=true to enable)")
	}

	cache := progress.NewCache(progress.DefaultCacheTTL)

	// Run background workers only if enabled (default: true for backward compatibility)
	enableWorkers := os.Getenv("ENABLE_WORKERS")
	if enableWorkers == "" {
		enableWorkers = "true" // Default to enabled
	}

	if enableWorkers == "true" {
		log.Println("Starting background workers...")
		go func() {
			ticker := time.NewTicker(1 * time.Minute)
			defer ticker.Stop()
			lastDigest := time.Now()
			for range ticker.C {
				now := time.Now()
				if err := api.ProcessHabitNudges(handle, now); err != nil {
					log.Printf("Nudge worker error: %v", err)
				}
				if now.Sub(lastDigest) >= 7*24*time.Hour {
					if err := api.SendWeeklyDigest(handle, now); err != nil {
						log.Printf("Digest worker error: %v", err)
					}
					lastDigest = now
				}
			}
		}()
	} else {
		log.Println("Background workers disabled (set ENABLE_WORKERS=true to enable)")
	}

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})

	// Middleware
	app.Use(logger.New())

	// CORS configuration: restrict to specific origins for security
	allowedOriginsRaw := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := strings.TrimSpace(allowedOriginsRaw)
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:80,http://localhost:5173" // Default for local dev
		log.Println("WARNING: Using default ALLOWED_ORIGINS. Set ALLOWED_ORIGINS env var for production.")
	} else {
		// Normalize comma-separated list (trim whitespace around entries)
		if allowedOrigins != "*" {
			parts := strings.Split(allowedOrigins, ",")
			for i, p := range parts {
				parts[i] = strings.TrimSpace(p)
			}
			allowedOrigins = strings.Join(parts, ",")
		}
	}

	log.Printf("CORS allowed origins: %s", allowedOrigins)

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true, // Required for cookies
	}))

	// Setup routes
	api.SetupRoutes(app, handle, cache)

	// Start server
	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	log.Printf("Server starting on port %s", port)
	log.Fatal(app.Listen(":" + port))
}

// errorHandler maps kinded domain errors and framework errors to JSON
// responses. Store failures are logged with their cause but never leak
// internal detail to the client.
func errorHandler(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		switch ae.Kind {
		case apperr.TransientStore, apperr.PermanentStore:
			log.Printf("store failure (%s): %v", ae.Kind, err)
		}
		return c.Status(apperr.HTTPStatus(ae.Kind)).JSON(fiber.Map{
			"error": apperr.PublicMessage(err),
		})
	}

	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
