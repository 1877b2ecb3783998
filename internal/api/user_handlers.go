package api

import (
	"database/sql"

	"stride/internal/apperr"
	"stride/internal/models"
	"stride/internal/progress"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
)

type UpdateEmailRequest struct {
	Email *string `json:"email"`
}

// GetUserProfileHandler returns the current user's profile information
func GetUserProfileHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		db, err := h.DB()
		if err != nil {
			return err
		}

		var username, weekStart string
		var email sql.NullString
		var createdAt string

		err = db.QueryRow(
			"SELECT username, email, week_start, created_at FROM users WHERE id = ?",
			userID,
		).Scan(&username, &email, &weekStart, &createdAt)

		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to get user profile")
		}

		profile := fiber.Map{
			"id":         userID,
			"username":   username,
			"week_start": weekStart,
			"created_at": createdAt,
		}

		if email.Valid {
			profile["email"] = email.String
		} else {
			profile["email"] = nil
		}

		return c.JSON(profile)
	}
}

// UpdateSettingsHandler changes the user's week start convention. The
// progress cache is invalidated because weekly period boundaries (and
// therefore progress and streaks) shift with it.
func UpdateSettingsHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var req models.UpdateSettingsRequest
		if err := c.BodyParser(&req); err != nil {
			return apperr.New(apperr.Validation, "Invalid request body")
		}
		if req.WeekStart != models.WeekStartMonday && req.WeekStart != models.WeekStartSunday {
			return apperr.New(apperr.Validation, "Week start must be monday or sunday")
		}

		err := h.Do(func(db *sql.DB) error {
			_, err := db.Exec("UPDATE users SET week_start = ? WHERE id = ?", req.WeekStart, userID)
			return err
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.JSON(fiber.Map{"success": true, "week_start": req.WeekStart})
	}
}

// UpdateUserEmailHandler updates the user's email address
func UpdateUserEmailHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		db, err := h.DB()
		if err != nil {
			return err
		}

		var req UpdateEmailRequest
		if err := c.BodyParser(&req); err != nil {
			return apperr.New(apperr.Validation, "Invalid request body")
		}

		// Validate email format if provided
		if req.Email != nil && *req.Email != "" {
			email := *req.Email
			// Basic email validation
			if len(email) < 3 || len(email) > 254 {
				return apperr.New(apperr.Validation, "Invalid email format")
			}
		}

		// Update email in database
		var emailValue interface{}
		if req.Email == nil || *req.Email == "" {
			emailValue = nil
		} else {
			emailValue = *req.Email
		}

		_, err = db.Exec("UPDATE users SET email = ? WHERE id = ?", emailValue, userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to update email")
		}

		return c.JSON(fiber.Map{
			"success": true,
			"message": "Email updated successfully",
		})
	}
}
