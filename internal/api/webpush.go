package api

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"stride/internal/store"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/gofiber/fiber/v2"
)

// PushPayload represents the notification payload sent to clients
type PushPayload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Icon  string                 `json:"icon,omitempty"`
	Badge string                 `json:"badge,omitempty"`
	Tag   string                 `json:"tag,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// GetVapidOptions returns configured VAPID options from environment
func GetVapidOptions() *webpush.Options {
	return &webpush.Options{
		Subscriber:      os.Getenv("VAPID_SUBJECT"),
		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		TTL:             30,
	}
}

// IsWebPushConfigured checks if VAPID keys are configured
func IsWebPushConfigured() bool {
	publicKey := os.Getenv("VAPID_PUBLIC_KEY")
	privateKey := os.Getenv("VAPID_PRIVATE_KEY")
	subject := os.Getenv("VAPID_SUBJECT")

	return publicKey != "" && privateKey != "" && subject != ""
}

// SendPushToUser sends a push notification to all subscriptions for a user
func SendPushToUser(db *sql.DB, userID int, payload PushPayload) error {
	if !IsWebPushConfigured() {
		log.Println("Web push not configured - skipping notification")
		return nil
	}

	// Get all push subscriptions for the user
	rows, err := db.Query(
		"SELECT endpoint, p256dh, auth FROM push_subscriptions WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to fetch subscriptions: %w", err)
	}
	defer rows.Close()

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	options := GetVapidOptions()
	successCount := 0
	failCount := 0
	subscriptionCount := 0

	for rows.Next() {
		subscriptionCount++
		var endpoint, p256dh, auth string
		if err := rows.Scan(&endpoint, &p256dh, &auth); err != nil {
			log.Printf("Error scanning subscription: %v", err)
			failCount++
			continue
		}

		subscription := &webpush.Subscription{
			Endpoint: endpoint,
			Keys: webpush.Keys{
				P256dh: p256dh,
				Auth:   auth,
			},
		}

		resp, err := webpush.SendNotification(payloadJSON, subscription, options)
		if err != nil {
			log.Printf("Failed to send push to %s: %v", endpoint, err)
			failCount++

			// If subscription is expired/invalid (410 Gone or 404), remove it
			if resp != nil && (resp.StatusCode == 410 || resp.StatusCode == 404) {
				_, _ = db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
				log.Printf("Removed expired subscription: %s", endpoint)
			}
			continue
		}

		if resp != nil {
			if resp.StatusCode >= 400 {
				body, _ := io.ReadAll(resp.Body)
				log.Printf("Push service error response: %s", string(body))
			}
			resp.Body.Close()

			// If 403 Forbidden, the VAPID keys don't match - delete the subscription
			// so the client will re-subscribe with current keys
			if resp.StatusCode == 403 {
				_, _ = db.Exec("DELETE FROM push_subscriptions WHERE endpoint = ?", endpoint)
				log.Printf("Deleted mismatched subscription (403 Forbidden): %s", endpoint)
				failCount++
				continue
			}
		}

		successCount++
	}

	log.Printf("Push notification summary for user %d: subscriptions=%d, success=%d, failed=%d", userID, subscriptionCount, successCount, failCount)

	if subscriptionCount == 0 {
		return fmt.Errorf("no push subscriptions found for user %d", userID)
	}

	if failCount > 0 && successCount == 0 {
		return fmt.Errorf("failed to send any push notifications (attempted %d)", failCount)
	}

	return nil
}

// VapidPublicKeyHandler returns the VAPID public key for client subscription
func VapidPublicKeyHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		publicKey := os.Getenv("VAPID_PUBLIC_KEY")
		if publicKey == "" {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Push notifications not configured")
		}
		return c.JSON(fiber.Map{
			"publicKey": publicKey,
		})
	}
}

// SendTestPushHandler sends an actual push notification for testing
func SendTestPushHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		db, err := h.DB()
		if err != nil {
			return err
		}

		if !IsWebPushConfigured() {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Push notifications not configured. Set VAPID_PUBLIC_KEY, VAPID_PRIVATE_KEY, and VAPID_SUBJECT environment variables.")
		}

		// Get most recent habit for context
		row := db.QueryRow("SELECT id, name FROM habits WHERE user_id = ? AND archived = 0 ORDER BY updated_at DESC LIMIT 1", userID)
		var habitID int
		var name string
		err = row.Scan(&habitID, &name)

		payload := PushPayload{
			Title: "Stride — Test Notification",
			Body:  "This is a test notification",
			Icon:  "/static/icons/stride.svg",
			Badge: "/static/icons/stride.svg",
			Tag:   fmt.Sprintf("stride-test-%d", time.Now().Unix()),
		}
		if err == nil {
			payload.Body = fmt.Sprintf("This is a test notification for %q", name)
			payload.Data = map[string]interface{}{"habit_id": habitID}
		} else if err != sql.ErrNoRows {
			return err
		}

		if err := SendPushToUser(db, userID, payload); err != nil {
			log.Printf("Test push failed for user %d: %v", userID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to send test notification: "+err.Error())
		}

		return c.JSON(fiber.Map{
			"success": true,
			"message": "Test notification sent",
		})
	}
}
