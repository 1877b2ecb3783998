package progress

import (
	"testing"
	"time"

	"stride/internal/models"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func testHabit(period string, frequency int, createdAt time.Time) models.Habit {
	return models.Habit{
		ID:        1,
		UserID:    1,
		Name:      "test habit",
		Period:    period,
		Frequency: frequency,
		CreatedAt: createdAt,
	}
}

func checkinsOn(dates ...string) []models.Checkin {
	out := make([]models.Checkin, 0, len(dates))
	for i, d := range dates {
		out = append(out, models.Checkin{ID: i + 1, HabitID: 1, Date: d})
	}
	return out
}

func TestComputeNoCheckins(t *testing.T) {
	habit := testHabit(models.PeriodDaily, 1, date(2026, time.January, 1))
	snap := Compute(habit, nil, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, Snapshot{CurrentProgress: 0, Streak: 0, CompletionRate: 0}, snap)
}

func TestComputeDailyStreak(t *testing.T) {
	habit := testHabit(models.PeriodDaily, 1, date(2026, time.January, 1))
	checkins := checkinsOn("2026-01-03", "2026-01-04", "2026-01-05", "2026-01-06")

	// No checkin today: the streak survives, the walk just starts at
	// yesterday.
	snap := Compute(habit, checkins, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, 0, snap.CurrentProgress)
	assert.Equal(t, 4, snap.Streak)
	assert.Equal(t, 0, snap.CompletionRate)

	// Checking in today extends it
	checkins = append(checkins, models.Checkin{ID: 9, HabitID: 1, Date: "2026-01-07"})
	snap = Compute(habit, checkins, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, 1, snap.CurrentProgress)
	assert.Equal(t, 5, snap.Streak)
	assert.Equal(t, 100, snap.CompletionRate)
}

func TestComputeGapBreaksStreak(t *testing.T) {
	habit := testHabit(models.PeriodDaily, 1, date(2026, time.January, 1))
	checkins := checkinsOn("2026-01-03", "2026-01-04", "2026-01-06", "2026-01-07")
	snap := Compute(habit, checkins, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, 2, snap.Streak, "the Jan 5 gap cuts off the earlier run")
}

func TestComputeFrequencyThreshold(t *testing.T) {
	habit := testHabit(models.PeriodDaily, 3, date(2026, time.January, 1))
	checkins := checkinsOn(
		"2026-01-06", "2026-01-06", "2026-01-06", // yesterday satisfied
		"2026-01-07", "2026-01-07", // today 2 of 3
	)
	snap := Compute(habit, checkins, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, 2, snap.CurrentProgress)
	assert.Equal(t, 1, snap.Streak, "a partially met current period does not break yesterday's streak")
	assert.Equal(t, 67, snap.CompletionRate)
}

func TestComputeMonthlyStreak(t *testing.T) {
	habit := testHabit(models.PeriodMonthly, 1, date(2025, time.November, 5))

	// Nov satisfied, Dec missed, Jan satisfied: streak restarts at 1
	checkins := checkinsOn("2025-11-20", "2026-01-10")
	snap := Compute(habit, checkins, date(2026, time.January, 15), models.WeekStartMonday)
	assert.Equal(t, 1, snap.Streak)

	// All three months satisfied: the walk stops at the creation month
	checkins = checkinsOn("2025-11-20", "2025-12-02", "2026-01-10")
	snap = Compute(habit, checkins, date(2026, time.January, 15), models.WeekStartMonday)
	assert.Equal(t, 3, snap.Streak)
}

func TestComputeStopsAtCreationPeriod(t *testing.T) {
	habit := testHabit(models.PeriodDaily, 1, date(2026, time.January, 5))
	// Checkins exist before the habit was created; they earn no credit.
	checkins := checkinsOn("2026-01-03", "2026-01-04", "2026-01-05", "2026-01-06", "2026-01-07")
	snap := Compute(habit, checkins, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, 3, snap.Streak)
}

func TestComputeWeekStartChangesPeriodMembership(t *testing.T) {
	habit := testHabit(models.PeriodWeekly, 1, date(2026, time.January, 1))
	// 2026-01-04 is a Sunday, the reference 2026-01-05 a Monday.
	checkins := checkinsOn("2026-01-04")
	ref := date(2026, time.January, 5)

	// Monday weeks: the Sunday checkin belongs to last week
	snap := Compute(habit, checkins, ref, models.WeekStartMonday)
	assert.Equal(t, 0, snap.CurrentProgress)
	assert.Equal(t, 1, snap.Streak)

	// Sunday weeks: the same checkin is in the current week
	snap = Compute(habit, checkins, ref, models.WeekStartSunday)
	assert.Equal(t, 1, snap.CurrentProgress)
	assert.Equal(t, 1, snap.Streak)
}

func TestComputeSkipsMalformedDates(t *testing.T) {
	habit := testHabit(models.PeriodDaily, 1, date(2026, time.January, 1))
	checkins := checkinsOn("not-a-date", "2026-01-07")
	snap := Compute(habit, checkins, date(2026, time.January, 7), models.WeekStartMonday)
	assert.Equal(t, 1, snap.CurrentProgress)
}

func TestCompletionRate(t *testing.T) {
	assert.Equal(t, 0, completionRate(0, 3))
	assert.Equal(t, 33, completionRate(1, 3))
	assert.Equal(t, 67, completionRate(2, 3))
	assert.Equal(t, 100, completionRate(3, 3))
	assert.Equal(t, 100, completionRate(5, 3), "over-achieving caps at 100")
	assert.Equal(t, 0, completionRate(2, 0), "bad frequency never divides by zero")
}

func TestAnnotate(t *testing.T) {
	h1 := testHabit(models.PeriodDaily, 1, date(2026, time.January, 1))
	h2 := testHabit(models.PeriodDaily, 2, date(2026, time.January, 1))
	h2.ID = 2

	byHabit := map[int][]models.Checkin{
		1: checkinsOn("2026-01-07"),
		2: {{ID: 5, HabitID: 2, Date: "2026-01-07"}},
	}
	out := Annotate([]models.Habit{h1, h2}, byHabit, date(2026, time.January, 7), models.WeekStartMonday)

	assert.Len(t, out, 2)
	assert.Equal(t, 1, out[0].CurrentProgress)
	assert.Equal(t, 100, out[0].CompletionRate)
	assert.Equal(t, 1, out[1].CurrentProgress)
	assert.Equal(t, 50, out[1].CompletionRate)
}
