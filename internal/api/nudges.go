package api

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"stride/internal/models"
	"stride/internal/period"
	"stride/internal/store"
)

// ProcessHabitNudges pushes a reminder for every active habit that has a
// configured nudge hour, is still below its frequency for the current
// period, and has not been nudged today. At most one nudge per habit per
// day; last_nudged_at is the watermark.
func ProcessHabitNudges(h *store.Handle, now time.Time) error {
	return h.Do(func(db *sql.DB) error {
		rows, err := db.Query(
			`SELECT ha.id, ha.user_id, ha.name, ha.period, ha.frequency, ha.nudge_hour, ha.last_nudged_at, u.week_start
			FROM habits ha
			JOIN users u ON u.id = ha.user_id
			WHERE ha.archived = 0 AND ha.nudge_hour IS NOT NULL`,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		type candidate struct {
			habit     models.Habit
			weekStart string
		}
		candidates := []candidate{}
		for rows.Next() {
			var cnd candidate
			hb := &cnd.habit
			err := rows.Scan(&hb.ID, &hb.UserID, &hb.Name, &hb.Period, &hb.Frequency, &hb.NudgeHour, &hb.LastNudgedAt, &cnd.weekStart)
			if err != nil {
				log.Printf("Error scanning habit for nudge: %v", err)
				continue
			}
			candidates = append(candidates, cnd)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, cnd := range candidates {
			if !shouldNudge(cnd.habit, now) {
				continue
			}

			start, end := period.Range(now, cnd.habit.Period, cnd.weekStart)
			count, err := periodCount(db, cnd.habit.ID, start, end)
			if err != nil {
				log.Printf("Failed to count checkins for habit %d: %v", cnd.habit.ID, err)
				continue
			}
			if count >= cnd.habit.Frequency {
				continue // period already satisfied, nothing to nudge
			}

			if err := sendNudge(db, cnd.habit, count); err != nil {
				log.Printf("Failed to send nudge for habit %d: %v", cnd.habit.ID, err)
			}
		}
		return nil
	})
}

// shouldNudge gates on the habit's configured hour and the once-per-day
// watermark.
func shouldNudge(habit models.Habit, now time.Time) bool {
	if habit.NudgeHour == nil {
		return false
	}
	if now.Hour() < *habit.NudgeHour {
		return false
	}
	if habit.LastNudgedAt != nil && period.FormatDateKey(*habit.LastNudgedAt) == period.FormatDateKey(now) {
		return false
	}
	return true
}

func periodNoun(p string) string {
	switch p {
	case models.PeriodWeekly:
		return "week"
	case models.PeriodMonthly:
		return "month"
	default:
		return "day"
	}
}

func sendNudge(db *sql.DB, habit models.Habit, count int) error {
	payload := PushPayload{
		Title: fmt.Sprintf("Keep your %q streak going", habit.Name),
		Body:  fmt.Sprintf("%d of %d done this %s", count, habit.Frequency, periodNoun(habit.Period)),
		Icon:  "/static/icons/stride.svg",
		Badge: "/static/icons/stride.svg",
		Tag:   fmt.Sprintf("stride-nudge-%d", habit.ID),
		Data:  map[string]interface{}{"habit_id": habit.ID},
	}
	if err := SendPushToUser(db, habit.UserID, payload); err != nil {
		return err
	}

	// Update the watermark even on partial delivery; the next nudge is
	// tomorrow either way.
	_, err := db.Exec("UPDATE habits SET last_nudged_at = CURRENT_TIMESTAMP WHERE id = ?", habit.ID)
	return err
}
