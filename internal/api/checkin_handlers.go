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

// resolveCheckinDate parses the optional request day key, defaulting to
// today. Checkins carry a calendar date only, never a time component.
func resolveCheckinDate(raw string) (time.Time, error) {
	if raw == "" {
		return period.Truncate(time.Now()), nil
	}
	d, err := period.ParseDateKey(raw)
	if err != nil {
		return time.Time{}, apperr.New(apperr.Validation, "Invalid date (want YYYY-MM-DD)")
	}
	return d, nil
}

// periodCount returns the checkin count for a habit within the inclusive
// period boundaries. Day keys are zero-padded, so string range comparison
// matches date order.
func periodCount(db *sql.DB, habitID int, start, end time.Time) (int, error) {
	var n int
	err := db.QueryRow(
		"SELECT COUNT(*) FROM checkins WHERE habit_id = ? AND date >= ? AND date <= ?",
		habitID, period.FormatDateKey(start), period.FormatDateKey(end),
	).Scan(&n)
	return n, err
}

// AddCheckinHandler records one completion unit and returns the
// server-confirmed count for the period the checkin landed in. Clients
// replace their optimistic count with it.
func AddCheckinHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		var req models.CheckinRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return apperr.New(apperr.Validation, "Invalid request body")
			}
		}
		date, err := resolveCheckinDate(req.Date)
		if err != nil {
			return err
		}

		var resp models.CheckinResponse
		err = h.Do(func(db *sql.DB) error {
			habit, err := getOwnedHabit(db, habitID, userID)
			if err != nil {
				return err
			}
			if habit.Archived {
				return apperr.New(apperr.Validation, "Cannot check in on an archived habit")
			}
			weekStart, err := userWeekStart(db, userID)
			if err != nil {
				return err
			}

			if _, err := db.Exec(
				"INSERT INTO checkins (habit_id, date) VALUES (?, ?)",
				habitID, period.FormatDateKey(date),
			); err != nil {
				return err
			}

			start, end := period.Range(date, habit.Period, weekStart)
			count, err := periodCount(db, habitID, start, end)
			if err != nil {
				return err
			}
			resp = models.CheckinResponse{CurrentCount: count}
			return nil
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.Status(fiber.StatusCreated).JSON(resp)
	}
}

// RemoveCheckinHandler deletes the most recent checkin within the period
// containing the given date. Removing from an empty period is not an
// error: it reports removed=false so rapid-tap removals stay idempotent
// for the client after a rollback.
func RemoveCheckinHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		var req models.CheckinRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return apperr.New(apperr.Validation, "Invalid request body")
			}
		}
		date, err := resolveCheckinDate(req.Date)
		if err != nil {
			return err
		}

		var resp models.CheckinResponse
		err = h.Do(func(db *sql.DB) error {
			habit, err := getOwnedHabit(db, habitID, userID)
			if err != nil {
				return err
			}
			weekStart, err := userWeekStart(db, userID)
			if err != nil {
				return err
			}
			start, end := period.Range(date, habit.Period, weekStart)

			result, err := db.Exec(
				`DELETE FROM checkins WHERE id = (
					SELECT id FROM checkins
					WHERE habit_id = ? AND date >= ? AND date <= ?
					ORDER BY date DESC, id DESC LIMIT 1
				)`,
				habitID, period.FormatDateKey(start), period.FormatDateKey(end),
			)
			if err != nil {
				return err
			}
			removed, _ := result.RowsAffected()

			count, err := periodCount(db, habitID, start, end)
			if err != nil {
				return err
			}
			resp = models.CheckinResponse{CurrentCount: count, Removed: removed > 0}
			return nil
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.JSON(resp)
	}
}

// ResetPeriodHandler bulk-deletes every checkin in the period containing
// the given date ("reset progress").
func ResetPeriodHandler(h *store.Handle, cache *progress.Cache) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		var req models.CheckinRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return apperr.New(apperr.Validation, "Invalid request body")
			}
		}
		date, err := resolveCheckinDate(req.Date)
		if err != nil {
			return err
		}

		var deleted int64
		err = h.Do(func(db *sql.DB) error {
			habit, err := getOwnedHabit(db, habitID, userID)
			if err != nil {
				return err
			}
			weekStart, err := userWeekStart(db, userID)
			if err != nil {
				return err
			}
			start, end := period.Range(date, habit.Period, weekStart)

			result, err := db.Exec(
				"DELETE FROM checkins WHERE habit_id = ? AND date >= ? AND date <= ?",
				habitID, period.FormatDateKey(start), period.FormatDateKey(end),
			)
			if err != nil {
				return err
			}
			deleted, _ = result.RowsAffected()
			return nil
		})
		if err != nil {
			return err
		}

		cache.Invalidate(userID)
		return c.JSON(fiber.Map{"deleted": deleted, "current_count": 0})
	}
}

// ListCheckinsHandler returns a habit's raw checkin rows, newest first.
func ListCheckinsHandler(h *store.Handle) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := c.Locals("userID").(int)
		habitID, err := strconv.Atoi(c.Params("id"))
		if err != nil {
			return apperr.New(apperr.Validation, "Invalid habit ID")
		}

		checkins := []models.Checkin{}
		err = h.Do(func(db *sql.DB) error {
			if _, err := getOwnedHabit(db, habitID, userID); err != nil {
				return err
			}
			rows, err := db.Query(
				"SELECT id, habit_id, date, created_at FROM checkins WHERE habit_id = ? ORDER BY date DESC, id DESC",
				habitID,
			)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				var ci models.Checkin
				if err := rows.Scan(&ci.ID, &ci.HabitID, &ci.Date, &ci.CreatedAt); err != nil {
					return err
				}
				checkins = append(checkins, ci)
			}
			return rows.Err()
		})
		if err != nil {
			return err
		}
		return c.JSON(checkins)
	}
}
