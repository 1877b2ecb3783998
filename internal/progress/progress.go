// Package progress computes the derived read-side view of a habit:
// current-period progress, consecutive-period streak, and completion rate.
package progress

import (
	"math"
	"time"

	"stride/internal/models"
	"stride/internal/period"
)

// CompletionCap caps the completion rate even when progress exceeds
// frequency.
const CompletionCap = 100

// Snapshot is the computed progress for one habit at one reference date.
type Snapshot struct {
	CurrentProgress int
	Streak          int
	CompletionRate  int
}

// Compute aggregates a habit's checkin history into its progress snapshot.
//
// Checkins are grouped into a count-per-period map in a single pass, so the
// backward streak walk costs O(1) per period examined instead of rescanning
// the history (which would be quadratic for long streaks).
func Compute(habit models.Habit, checkins []models.Checkin, refDate time.Time, weekStart string) Snapshot {
	counts := make(map[string]int, len(checkins))
	for _, ci := range checkins {
		d, err := period.ParseDateKey(ci.Date)
		if err != nil {
			continue // malformed rows don't poison the whole history
		}
		counts[period.Key(d, habit.Period, weekStart)]++
	}

	currentKey := period.Key(refDate, habit.Period, weekStart)
	current := counts[currentKey]

	// An incomplete current period neither breaks nor extends the streak:
	// the walk starts one period back instead.
	cursor := period.Truncate(refDate)
	if current < habit.Frequency {
		cursor = period.Previous(cursor, habit.Period)
	}

	// Periods before the habit existed never earn credit.
	createdKey := period.Key(habit.CreatedAt, habit.Period, weekStart)

	streak := 0
	for {
		key := period.Key(cursor, habit.Period, weekStart)
		if counts[key] < habit.Frequency {
			break
		}
		streak++
		if key == createdKey {
			break
		}
		cursor = period.Previous(cursor, habit.Period)
	}

	return Snapshot{
		CurrentProgress: current,
		Streak:          streak,
		CompletionRate:  completionRate(current, habit.Frequency),
	}
}

func completionRate(progress, frequency int) int {
	if frequency <= 0 {
		return 0
	}
	rate := int(math.Round(float64(progress) / float64(frequency) * CompletionCap))
	if rate > CompletionCap {
		return CompletionCap
	}
	return rate
}

// Annotate attaches a snapshot to each habit. Archived habits are the
// caller's concern; Annotate computes whatever it is given.
func Annotate(habits []models.Habit, checkinsByHabit map[int][]models.Checkin, refDate time.Time, weekStart string) []models.HabitWithProgress {
	out := make([]models.HabitWithProgress, 0, len(habits))
	for _, h := range habits {
		snap := Compute(h, checkinsByHabit[h.ID], refDate, weekStart)
		out = append(out, models.HabitWithProgress{
			Habit:           h,
			CurrentProgress: snap.CurrentProgress,
			Streak:          snap.Streak,
			CompletionRate:  snap.CompletionRate,
		})
	}
	return out
}
