package api

import (
	"database/sql"

	"stride/internal/apperr"
	"stride/internal/models"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
)

func SubscribePushHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var sub models.PushSubscription
		if err := c.BodyParser(&sub); err != nil {
			return apperr.New(apperr.Validation, "Invalid request body")
		}

		if sub.Endpoint == "" || sub.P256dh == "" || sub.Auth == "" {
			return apperr.New(apperr.Validation, "Missing subscription fields")
		}

		return h.Do(func(db *sql.DB) error {
			// Upsert subscription
			_, err := db.Exec(
				`INSERT INTO push_subscriptions (user_id, endpoint, p256dh, auth)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(user_id, endpoint) DO UPDATE SET
				p256dh = excluded.p256dh,
				auth = excluded.auth`,
				userID, sub.Endpoint, sub.P256dh, sub.Auth,
			)
			if err != nil {
				return err
			}
			return c.JSON(fiber.Map{"success": true})
		})
	}
}

func UnsubscribePushHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var body struct {
			Endpoint string `json:"endpoint"`
		}
		if err := c.BodyParser(&body); err != nil {
			return apperr.New(apperr.Validation, "Invalid request body")
		}

		return h.Do(func(db *sql.DB) error {
			_, err := db.Exec(
				"DELETE FROM push_subscriptions WHERE user_id = ? AND endpoint = ?",
				userID, body.Endpoint,
			)
			if err != nil {
				return err
			}
			return c.JSON(fiber.Map{"success": true})
		})
	}
}
