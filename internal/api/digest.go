package api

import (
	"bytes"
	"crypto/tls"
	"database/sql"
	"fmt"
	"html/template"
	"log"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"

	"stride/internal/models"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
)

// digestTemplate renders the weekly streak digest. Kept inline so the
// binary has no runtime file dependency.
const digestTemplate = `<!DOCTYPE html>
<html>
<body style="font-family: sans-serif; color: #222;">
	<h2>Your week in Stride</h2>
	<p>Hi {{.Username}}, here is where your habits stand:</p>
	<table cellpadding="6">
		<tr><th align="left">Habit</th><th align="left">Streak</th><th align="left">This period</th></tr>
		{{range .Habits}}
		<tr>
			<td>{{.Name}}</td>
			<td>{{.Streak}}</td>
			<td>{{.CurrentProgress}}/{{.Frequency}}</td>
		</tr>
		{{end}}
	</table>
	<p><a href="{{.AppURL}}">Open Stride</a></p>
	<p style="color:#888;font-size:12px;">&copy; {{.Year}} Stride</p>
</body>
</html>`

type digestData struct {
	Username string
	Habits   []models.HabitWithProgress
	AppURL   string
	Year     int
}

// GenerateDigestEmail renders the digest HTML for one user.
func GenerateDigestEmail(username string, habits []models.HabitWithProgress) (string, error) {
	tmpl, err := template.New("digest").Parse(digestTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse digest template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, digestData{
		Username: username,
		Habits:   habits,
		AppURL:   getAppURL(),
		Year:     time.Now().Year(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to execute digest template: %w", err)
	}
	return buf.String(), nil
}

// SendWeeklyDigest emails the streak digest to every user with an email
// address and at least one active habit. Called from the worker loop once
// per week.
func SendWeeklyDigest(h *store.Handle, now time.Time) error {
	config, err := GetSMTPConfig()
	if err != nil {
		log.Printf("SMTP not configured, skipping digest: %v", err)
		return nil
	}

	return h.Do(func(db *sql.DB) error {
		rows, err := db.Query("SELECT id, username, email FROM users WHERE email IS NOT NULL AND email != ''")
		if err != nil {
			return err
		}
		defer rows.Close()

		type recipient struct {
			id       int
			username string
			email    string
		}
		recipients := []recipient{}
		for rows.Next() {
			var r recipient
			if err := rows.Scan(&r.id, &r.username, &r.email); err != nil {
				return err
			}
			recipients = append(recipients, r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range recipients {
			habits, err := loadHabitsWithProgress(db, r.id, now)
			if err != nil {
				log.Printf("Failed to load digest habits for user %d: %v", r.id, err)
				continue
			}
			if len(habits) == 0 {
				continue
			}
			html, err := GenerateDigestEmail(r.username, habits)
			if err != nil {
				log.Printf("Failed to render digest for user %d: %v", r.id, err)
				continue
			}
			if err := sendSMTPEmail(config, r.email, "Your weekly Stride digest", html); err != nil {
				log.Printf("Failed to send digest to user %d: %v", r.id, err)
			}
		}
		return nil
	})
}

// SendTestDigestHandler sends the digest to the calling user immediately.
func SendTestDigestHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		username := c.Locals("username").(string)

		config, err := GetSMTPConfig()
		if err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "SMTP not configured")
		}

		var email sql.NullString
		var habits []models.HabitWithProgress
		err = h.Do(func(db *sql.DB) error {
			if err := db.QueryRow("SELECT email FROM users WHERE id = ?", userID).Scan(&email); err != nil {
				return err
			}
			var err error
			habits, err = loadHabitsWithProgress(db, userID, time.Now())
			return err
		})
		if err != nil {
			return err
		}
		if !email.Valid || email.String == "" {
			return fiber.NewError(fiber.StatusBadRequest, "No email address on profile")
		}

		html, err := GenerateDigestEmail(username, habits)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to render digest")
		}
		if err := sendSMTPEmail(config, email.String, "Your weekly Stride digest", html); err != nil {
			log.Printf("Test digest failed for user %d: %v", userID, err)
			return fiber.NewError(fiber.StatusInternalServerError, "Failed to send digest")
		}

		return c.JSON(fiber.Map{"success": true, "message": "Digest sent"})
	}
}

// SMTPConfig holds SMTP server configuration
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

// GetSMTPConfig reads SMTP configuration from environment variables
func GetSMTPConfig() (*SMTPConfig, error) {
	host := os.Getenv("SMTP_HOST")
	portStr := os.Getenv("SMTP_PORT")
	username := os.Getenv("SMTP_USER")
	password := os.Getenv("SMTP_PASS")
	from := os.Getenv("SMTP_FROM")
	useTLSStr := os.Getenv("SMTP_USE_TLS")

	if host == "" {
		return nil, fmt.Errorf("SMTP_HOST not configured")
	}

	port := 587 // Default SMTP port
	if portStr != "" {
		var err error
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
		}
	}

	if from == "" {
		from = "noreply@stride.app"
	}

	useTLS := true
	if useTLSStr != "" {
		useTLS = strings.ToLower(useTLSStr) != "false"
	}

	return &SMTPConfig{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		From:     from,
		UseTLS:   useTLS,
	}, nil
}

// sendSMTPEmail sends an email via SMTP
func sendSMTPEmail(config *SMTPConfig, to, subject, htmlBody string) error {
	// Build email message with proper MIME multipart format
	boundary := "----=_Part_0_1234567890.1234567890"

	message := fmt.Sprintf("From: %s\r\n", config.From)
	message += fmt.Sprintf("To: %s\r\n", to)
	message += fmt.Sprintf("Subject: %s\r\n", subject)
	message += "MIME-Version: 1.0\r\n"
	message += fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	message += "\r\n"

	// Plain text version
	message += fmt.Sprintf("--%s\r\n", boundary)
	message += "Content-Type: text/plain; charset=UTF-8\r\n"
	message += "Content-Transfer-Encoding: 7bit\r\n"
	message += "\r\n"
	message += "Please view this email in an HTML-capable email client.\r\n"
	message += "\r\n"

	// HTML version
	message += fmt.Sprintf("--%s\r\n", boundary)
	message += "Content-Type: text/html; charset=UTF-8\r\n"
	message += "Content-Transfer-Encoding: 7bit\r\n"
	message += "\r\n"
	message += htmlBody
	message += "\r\n"
	message += fmt.Sprintf("--%s--\r\n", boundary)

	// Connect to SMTP server
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)

	var auth smtp.Auth
	if config.Username != "" && config.Password != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}

	// Use TLS if configured
	if config.UseTLS {
		return sendMailTLS(addr, auth, config.From, []string{to}, []byte(message), config.Host)
	}

	// Standard SMTP without TLS
	return smtp.SendMail(addr, auth, config.From, []string{to}, []byte(message))
}

// sendMailTLS sends email with TLS encryption
func sendMailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte, host string) error {
	// Connect to server
	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	// Start TLS
	tlsConfig := &tls.Config{
		ServerName: host,
	}
	if err = client.StartTLS(tlsConfig); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	// Authenticate
	if auth != nil {
		if err = client.Auth(auth); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	// Set sender
	if err = client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	// Set recipient
	for _, recipient := range to {
		if err = client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient: %w", err)
		}
	}

	// Send message
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}
	defer w.Close()

	if _, err = w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

// getAppURL returns the application URL from environment or default
func getAppURL() string {
	url := os.Getenv("APP_URL")
	if url == "" {
		url = "http://localhost:3000"
	}
	return url
}
