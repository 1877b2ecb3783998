package models

import "time"

// Period kinds a habit can track against.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Week start conventions for weekly period boundaries.
const (
	WeekStartMonday = "monday"
	WeekStartSunday = "sunday"
)

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	WeekStart    string    `json:"week_start"`
	CreatedAt    time.Time `json:"created_at"`
}

type Habit struct {
	ID           int        `json:"id"`
	UserID       int        `json:"user_id"`
	Name         string     `json:"name"`
	Icon         string     `json:"icon,omitempty"`
	Color        string     `json:"color,omitempty"`
	Period       string     `json:"period"`
	Frequency    int        `json:"frequency"`
	Archived     bool       `json:"archived"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	NudgeHour    *int       `json:"nudge_hour,omitempty"`
	LastNudgedAt *time.Time `json:"last_nudged_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Checkin struct {
	ID        int       `json:"id"`
	HabitID   int       `json:"habit_id"`
	Date      string    `json:"date"` // day key, YYYY-MM-DD
	CreatedAt time.Time `json:"created_at"`
}

// HabitWithProgress is the derived read-side view of a habit: never stored,
// recomputed from checkin rows on every read (optionally served from the
// progress cache).
type HabitWithProgress struct {
	Habit
	CurrentProgress int `json:"current_progress"`
	Streak          int `json:"streak"`
	CompletionRate  int `json:"completion_rate"`
}

type CreateHabitRequest struct {
	Name      string `json:"name"`
	Icon      string `json:"icon,omitempty"`
	Color     string `json:"color,omitempty"`
	Period    string `json:"period"`
	Frequency int    `json:"frequency"`
	NudgeHour *int   `json:"nudge_hour,omitempty"`
}

type UpdateHabitRequest struct {
	Name      *string `json:"name,omitempty"`
	Icon      *string `json:"icon,omitempty"`
	Color     *string `json:"color,omitempty"`
	Period    *string `json:"period,omitempty"`
	Frequency *int    `json:"frequency,omitempty"`
	NudgeHour *int    `json:"nudge_hour,omitempty"`
}

type CheckinRequest struct {
	Date string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

// CheckinResponse carries the server-confirmed count for the period the
// mutation landed in; clients replace their optimistic count with it.
type CheckinResponse struct {
	CurrentCount int  `json:"current_count"`
	Removed      bool `json:"removed,omitempty"`
}

type UpdateSettingsRequest struct {
	WeekStart string `json:"week_start"`
}

type PushSubscription struct {
	ID       int    `json:"id"`
	UserID   int    `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Remember bool   `json:"remember,omitempty"`
}

type AuthResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}
