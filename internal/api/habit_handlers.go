package api

import (
	"database/sql"
	"strconv"
	"time"

	"stride/internal/apperr"
	"stride/internal/models"
	"stride/internal/period"
	"stride/internal/progress"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
)

const habitColumns = `id, user_id, name, icon, color, period, frequency, archived, archived_at, nudge_hour, last_nudged_at, created_at, updated_at`

func scanHabit(row interface{ Scan(...any) error }) (models.Habit, error) {
	var h models.Habit
	err := row.Scan(
		&h.ID, &h.UserID, &h.Name, &h.Icon, &h.Color, &h.Period, &h.Frequency,
		&h.Archived, &h.ArchivedAt, &h.NudgeHour, &h.LastNudgedAt, &h.CreatedAt, &h.UpdatedAt,
	)
	return h, err
}

// getOwnedHabit loads a habit and enforces ownership: NotFound when the row
// is absent, Unauthorized when it belongs to someone else.
func getOwnedHabit(db *sql.DB, habitID, userID int) (models.Habit, error) {
	h, err := scanHabit(db.QueryRow("SELECT "+habitColumns+" FROM habits WHERE id = ?", habitID))
	if err == sql.ErrNoRows {
		return h, apperr.New(apperr.NotFound, "Habit not found")
	}
	if err != nil {
		return h, err
	}
	if h.UserID != userID {
		return h, apperr.New(apperr.Unauthorized, "Not authorized")
	}
	return h, nil
}

func validatePeriod(p string) bool {
	return p == models.PeriodDaily || p == models.PeriodWeekly || p == models.PeriodMonthly
}

func userWeekStart(db *sql.DB, userID int) (string, error) {
	var ws string
	err := db.QueryRow("SELECT week_start FROM users WHERE id = ?", userID).Scan(&ws)
	if err != nil {
		return models.WeekStartMonday, err
	}
	if ws != models.WeekStartSunday {
		ws = models.WeekStartMonday
	}
	return ws, nil
}

func CreateHabitHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		var req models.CreateHabitRequest
		if err := c.BodyParser(&req); err != nil {
			return apperr.New(apperr.Validation, "Invalid request body")
		}

		if req.Name == "" {
			return apperr.New(apperr.Validation, "Name is required")
		}
		if req.Period == "" {
			req.Period = models.PeriodDaily
		}
		if !validatePeriod(req.Period) {
			return apperr.New(apperr.Validation, "Period must be daily, weekly or monthly")
		}
		if req.Frequency == 0 {
			req.Frequency = 1
		}
		if req.Frequency < 1 {
			return apperr.New(apperr.Validation, "Frequency must be at least 1")
		}

		var habit models.Habit
		err := h.Do(func(db *sql.DB) error {
			result, err := db.Exec(
				`INSERT INTO habits (user_id, name, icon, color, period, frequency, nudge_hour)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				userID, req.Name, req.Icon, req.Color, req.Period, req.Frequency, req.NudgeHour,
			)
			if err != nil {
				return err
			}
			habitID, _ := result.LastInsertId()
			habit, err = scanHabit(db.QueryRow("SELECT "+habitColumns+" FROM habits WHERE id = ?", habitID))
			return err
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.Status(fiber.StatusCreated).JSON(habit)
	}
}

// ListHabitsHandler returns the user's active habits annotated with
// current-period progress, streak, and completion rate.
//
// Read path: progress cache first (valid only for the exact date key and
// within TTL); on miss, compute from checkin rows with a single retry on
// transient store failure; if the retry also fails, a stale cached snapshot
// is served instead of the error, flagged via the X-Progress-Stale header.
func ListHabitsHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		refDate := time.Now()
		if q := c.Query("date"); q != "" {
			d, err := period.ParseDateKey(q)
			if err != nil {
				return apperr.New(apperr.Validation, "Invalid date (want YYYY-MM-DD)")
			}
			refDate = d
		}
		dateKey := period.FormatDateKey(refDate)

		if cached := cache.Get(userID, dateKey); cached != nil {
			return c.JSON(cached)
		}

		var result []models.HabitWithProgress
		err := h.Do(func(db *sql.DB) error {
			var err error
			result, err = loadHabitsWithProgress(db, userID, refDate)
			return err
		})
		if err != nil {
			if apperr.IsTransient(err) {
				if stale, staleKey, ok := cache.GetStale(userID); ok {
					c.Set("X-Progress-Stale", staleKey)
					return c.JSON(stale)
				}
			}
			return err
		}

		cache.Set(userID, dateKey, result)
		return c.JSON(result)
	}
}

// loadHabitsWithProgress loads active habits and their full checkin
// histories, then computes progress snapshots for the reference date.
func loadHabitsWithProgress(db *sql.DB, userID int, refDate time.Time) ([]models.HabitWithProgress, error) {
	weekStart, err := userWeekStart(db, userID)
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(
		"SELECT "+habitColumns+" FROM habits WHERE user_id = ? AND archived = 0 ORDER BY created_at ASC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	habits := []models.Habit{}
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	ciRows, err := db.Query(
		`SELECT ci.id, ci.habit_id, ci.date, ci.created_at
		FROM checkins ci
		JOIN habits ha ON ha.id = ci.habit_id
		WHERE ha.user_id = ? AND ha.archived = 0`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer ciRows.Close()

	byHabit := make(map[int][]models.Checkin)
	for ciRows.Next() {
		var ci models.Checkin
		if err := ciRows.Scan(&ci.ID, &ci.HabitID, &ci.Date, &ci.CreatedAt); err != nil {
			return nil, err
		}
		byHabit[ci.HabitID] = append(byHabit[ci.HabitID], ci)
	}
	if err := ciRows.Err(); err != nil {
		return nil, err
	}

	return progress.Annotate(habits, byHabit, refDate, weekStart), nil
}

func GetHabitHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		var result models.HabitWithProgress
		err = h.Do(func(db *sql.DB) error {
			habit, err := getOwnedHabit(db, habitID, userID)
			if err != nil {
				return err
			}
			weekStart, err := userWeekStart(db, userID)
			if err != nil {
				return err
			}

			rows, err := db.Query("SELECT id, habit_id, date, created_at FROM checkins WHERE habit_id = ?", habitID)
			if err != nil {
				return err
			}
			defer rows.Close()

			checkins := []models.Checkin{}
			for rows.Next() {
				var ci models.Checkin
				if err := rows.Scan(&ci.ID, &ci.HabitID, &ci.Date, &ci.CreatedAt); err != nil {
					return err
				}
				checkins = append(checkins, ci)
			}
			if err := rows.Err(); err != nil {
				return err
			}

			snap := progress.Compute(habit, checkins, time.Now(), weekStart)
			result = models.HabitWithProgress{
				Habit:           habit,
				CurrentProgress: snap.CurrentProgress,
				Streak:          snap.Streak,
				CompletionRate:  snap.CompletionRate,
			}
			return nil
		})
		if err != nil {
			return err
		}
		return c.JSON(result)
	}
}

func UpdateHabitHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		var req models.UpdateHabitRequest
		if err := c.BodyParser(&req); err != nil {
			return apperr.New(apperr.Validation, "Invalid request body")
		}
		if req.Name != nil && *req.Name == "" {
			return apperr.New(apperr.Validation, "Name must not be empty")
		}
		if req.Period != nil && !validatePeriod(*req.Period) {
			return apperr.New(apperr.Validation, "Period must be daily, weekly or monthly")
		}
		if req.Frequency != nil && *req.Frequency < 1 {
			return apperr.New(apperr.Validation, "Frequency must be at least 1")
		}

		var habit models.Habit
		err = h.Do(func(db *sql.DB) error {
			current, err := getOwnedHabit(db, habitID, userID)
			if err != nil {
				return err
			}
			if req.Name != nil {
				current.Name = *req.Name
			}
			if req.Icon != nil {
				current.Icon = *req.Icon
			}
			if req.Color != nil {
				current.Color = *req.Color
			}
			if req.Period != nil {
				current.Period = *req.Period
			}
			if req.Frequency != nil {
				current.Frequency = *req.Frequency
			}
			if req.NudgeHour != nil {
				current.NudgeHour = req.NudgeHour
			}

			_, err = db.Exec(
				`UPDATE habits SET name = ?, icon = ?, color = ?, period = ?, frequency = ?, nudge_hour = ?, updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				current.Name, current.Icon, current.Color, current.Period, current.Frequency, current.NudgeHour, habitID,
			)
			if err != nil {
				return err
			}
			habit, err = scanHabit(db.QueryRow("SELECT "+habitColumns+" FROM habits WHERE id = ?", habitID))
			return err
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.JSON(habit)
	}
}

func ArchiveHabitHandler(h *store.Handle, cache *progress.Cache, archive bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		err = h.Do(func(db *sql.DB) error {
			if _, err := getOwnedHabit(db, habitID, userID); err != nil {
				return err
			}
			if archive {
				_, err = db.Exec(
					"UPDATE habits SET archived = 1, archived_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
					habitID,
				)
			} else {
				_, err = db.Exec(
					"UPDATE habits SET archived = 0, archived_at = NULL, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
					habitID,
				)
			}
			return err
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.JSON(fiber.Map{"success": true})
	}
}

// DeleteHabitHandler hard-deletes a habit and (by cascade) its checkins.
// Only archived habits can be deleted: deletion is the second step of the
// archive-then-delete flow, never a single irreversible action.
func DeleteHabitHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		err = h.Do(func(db *sql.DB) error {
			habit, err := getOwnedHabit(db, habitID, userID)
			if err != nil {
				return err
			}
			if !habit.Archived {
				return apperr.New(apperr.Validation, "Habit must be archived before it can be deleted")
			}
			_, err = db.Exec("DELETE FROM habits WHERE id = ?", habitID)
			return err
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.JSON(fiber.Map{"success": true})
	}
}

// ListArchivedHabitsHandler returns archived habits without progress
// annotation; they are retained for history but excluded from computation.
func ListArchivedHabitsHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)

		habits := []models.Habit{}
		err := h.Do(func(db *sql.DB) error {
			rows, err := db.Query(
				"SELECT "+habitColumns+" FROM habits WHERE user_id = ? AND archived = 1 ORDER BY archived_at DESC",
				userID,
			)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				hab, err := scanHabit(rows)
				if err != nil {
					return err
				}
				habits = append(habits, hab)
			}
			return rows.Err()
		})
		if err != nil {
			return err
		}
		return c.JSON(habits)
	}
}
