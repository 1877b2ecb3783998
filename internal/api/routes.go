package api

import (
	"os"
	"strings"

	"stride/internal/progress"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
)

func SetupRoutes(app *fiber.App, h *store.Handle, cache *progress.Cache) {
	api := app.Group("/api")

	// Check if registration is disabled
	disableRegistration := strings.ToLower(os.Getenv("DISABLE_REGISTRATION")) == "true"

	// Configuration endpoint (public)
	api.Get("/config", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"disableRegistration": disableRegistration,
		})
	})

	// Auth routes
	auth := api.Group("/auth")
	if !disableRegistration {
		auth.Post("/register", RegisterHandler(h))
	}
	auth.Post("/login", LoginHandler(h))
	auth.Post("/refresh", RefreshTokenHandler(h))
	auth.Post("/logout", LogoutHandler(h))

	// VAPID public key endpoint (public - must be before protected routes for proper routing)
	api.Get("/push/vapid-public-key", VapidPublicKeyHandler())

	// Protected routes
	protected := api.Group("/", AuthMiddleware())

	// Habit routes
	habits := protected.Group("/habits")
	habits.Post("/", CreateHabitHandler(h, cache))
	habits.Get("/", ListHabitsHandler(h, cache))
	habits.Get("/archived", ListArchivedHabitsHandler(h))
	habits.Get("/:id", GetHabitHandler(h))
	habits.Put("/:id", UpdateHabitHandler(h, cache))
	habits.Post("/:id/archive", ArchiveHabitHandler(h, cache, true))
	habits.Post("/:id/unarchive", ArchiveHabitHandler(h, cache, false))
	habits.Delete("/:id", DeleteHabitHandler(h, cache))

	// Checkin routes
	habits.Get("/:id/checkins", ListCheckinsHandler(h))
	habits.Post("/:id/checkins", AddCheckinHandler(h, cache))
	habits.Delete("/:id/checkins", RemoveCheckinHandler(h, cache))
	habits.Delete("/:id/checkins/all", ResetPeriodHandler(h, cache))

	// Push subscription routes
	push := protected.Group("/push")
	push.Post("/subscribe", SubscribePushHandler(h))
	push.Delete("/unsubscribe", UnsubscribePushHandler(h))
	push.Post("/test", SendTestPushHandler(h))

	// User profile routes
	user := protected.Group("/user")
	user.Get("/profile", GetUserProfileHandler(h))
	user.Put("/settings", UpdateSettingsHandler(h, cache))
	user.Put("/email", UpdateUserEmailHandler(h))
	user.Post("/digest/test", SendTestDigestHandler(h))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}
