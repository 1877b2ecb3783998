package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"testing"

	"stride/internal/api"
	"stride/internal/apperr"
	"stride/internal/models"
	"stride/internal/progress"
	"stride/internal/store"

	"github.com/gofiber/fiber/v2"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "test-secret-test-secret-test-secret-1234")
	os.Setenv("COOKIE_SECURE", "false")
	os.Exit(m.Run())
}

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()
	h := store.NewHandle(":memory:")
	if _, err := h.DB(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { h.Close() })

	app := fiber.New(fiber.Config{ErrorHandler: testErrorHandler})
	api.SetupRoutes(app, h, progress.NewCache(progress.DefaultCacheTTL))
	return app
}

// testErrorHandler mirrors the production error mapping so status
// assertions match what a deployed server would return.
func testErrorHandler(c *fiber.Ctx, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return c.Status(apperr.HTTPStatus(ae.Kind)).JSON(fiber.Map{
			"error": apperr.PublicMessage(err),
		})
	}
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func registerUser(t *testing.T, app *fiber.App, username string) string {
	t.Helper()
	code, raw := doJSON(t, app, "POST", "/api/auth/register", "", models.RegisterRequest{
		Username: username,
		Password: "password123",
	})
	if code != 201 {
		t.Fatalf("Expected status 201, got %d: %s", code, raw)
	}
	var authResp models.AuthResponse
	json.Unmarshal(raw, &authResp)
	if authResp.Token == "" {
		t.Fatal("Expected token in response")
	}
	return authResp.Token
}

func createHabit(t *testing.T, app *fiber.App, token string, req models.CreateHabitRequest) models.Habit {
	t.Helper()
	code, raw := doJSON(t, app, "POST", "/api/habits/", token, req)
	if code != 201 {
		t.Fatalf("Expected status 201, got %d: %s", code, raw)
	}
	var habit models.Habit
	json.Unmarshal(raw, &habit)
	return habit
}

func TestRegisterAndLogin(t *testing.T) {
	app := setupTestApp(t)

	registerUser(t, app, "testuser")

	code, raw := doJSON(t, app, "POST", "/api/auth/login", "", models.LoginRequest{
		Username: "testuser",
		Password: "password123",
	})
	if code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", code, raw)
	}

	var loginResp models.AuthResponse
	json.Unmarshal(raw, &loginResp)
	if loginResp.Token == "" {
		t.Fatal("Expected token in response")
	}
	if loginResp.User.WeekStart != models.WeekStartMonday {
		t.Fatalf("Expected default week start monday, got %s", loginResp.User.WeekStart)
	}

	// Wrong password
	code, _ = doJSON(t, app, "POST", "/api/auth/login", "", models.LoginRequest{
		Username: "testuser",
		Password: "wrongpassword",
	})
	if code != 401 {
		t.Fatalf("Expected status 401 for wrong password, got %d", code)
	}
}

func TestCreateHabitValidation(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")

	code, _ := doJSON(t, app, "POST", "/api/habits/", token, models.CreateHabitRequest{Period: "daily"})
	if code != 400 {
		t.Fatalf("Expected status 400 for missing name, got %d", code)
	}

	code, _ = doJSON(t, app, "POST", "/api/habits/", token, models.CreateHabitRequest{Name: "Read", Period: "yearly"})
	if code != 400 {
		t.Fatalf("Expected status 400 for unknown period, got %d", code)
	}

	code, _ = doJSON(t, app, "POST", "/api/habits/", token, models.CreateHabitRequest{Name: "Read", Frequency: -1})
	if code != 400 {
		t.Fatalf("Expected status 400 for negative frequency, got %d", code)
	}

	// Omitted period and frequency fall back to daily/1
	habit := createHabit(t, app, token, models.CreateHabitRequest{Name: "Read"})
	if habit.Period != models.PeriodDaily || habit.Frequency != 1 {
		t.Fatalf("Expected daily/1 defaults, got %s/%d", habit.Period, habit.Frequency)
	}
}

func TestCheckinProgressFlow(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")

	habit := createHabit(t, app, token, models.CreateHabitRequest{
		Name: "Water", Period: "daily", Frequency: 3,
	})
	checkinPath := fmt.Sprintf("/api/habits/%d/checkins", habit.ID)

	for i := 1; i <= 3; i++ {
		code, raw := doJSON(t, app, "POST", checkinPath, token, nil)
		if code != 201 {
			t.Fatalf("Expected status 201, got %d: %s", code, raw)
		}
		var resp models.CheckinResponse
		json.Unmarshal(raw, &resp)
		if resp.CurrentCount != i {
			t.Fatalf("Expected current_count %d, got %d", i, resp.CurrentCount)
		}
	}

	code, raw := doJSON(t, app, "GET", "/api/habits/", token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", code, raw)
	}
	var habits []models.HabitWithProgress
	json.Unmarshal(raw, &habits)
	if len(habits) != 1 {
		t.Fatalf("Expected 1 habit, got %d", len(habits))
	}
	if habits[0].CurrentProgress != 3 {
		t.Fatalf("Expected progress 3, got %d", habits[0].CurrentProgress)
	}
	if habits[0].CompletionRate != 100 {
		t.Fatalf("Expected completion rate 100, got %d", habits[0].CompletionRate)
	}
	if habits[0].Streak != 1 {
		t.Fatalf("Expected streak 1, got %d", habits[0].Streak)
	}

	// Undo one checkin: 2 of 3 rounds to 67%, and the only satisfied
	// period is gone so the streak drops to 0.
	code, raw = doJSON(t, app, "DELETE", checkinPath, token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", code, raw)
	}
	var removeResp models.CheckinResponse
	json.Unmarshal(raw, &removeResp)
	if !removeResp.Removed || removeResp.CurrentCount != 2 {
		t.Fatalf("Expected removal leaving count 2, got %+v", removeResp)
	}

	_, raw = doJSON(t, app, "GET", "/api/habits/", token, nil)
	json.Unmarshal(raw, &habits)
	if habits[0].CurrentProgress != 2 || habits[0].CompletionRate != 67 {
		t.Fatalf("Expected 2/67, got %d/%d", habits[0].CurrentProgress, habits[0].CompletionRate)
	}
	if habits[0].Streak != 0 {
		t.Fatalf("Expected streak 0, got %d", habits[0].Streak)
	}

	// Draining the period and removing once more is a no-op, not an error
	doJSON(t, app, "DELETE", checkinPath, token, nil)
	doJSON(t, app, "DELETE", checkinPath, token, nil)
	code, raw = doJSON(t, app, "DELETE", checkinPath, token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", code, raw)
	}
	json.Unmarshal(raw, &removeResp)
	if removeResp.Removed || removeResp.CurrentCount != 0 {
		t.Fatalf("Expected no-op removal at zero, got %+v", removeResp)
	}
}

func TestCheckinOnArchivedHabit(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")
	habit := createHabit(t, app, token, models.CreateHabitRequest{Name: "Stretch"})

	code, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/habits/%d/archive", habit.ID), token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200 archiving, got %d", code)
	}

	code, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/habits/%d/checkins", habit.ID), token, nil)
	if code != 400 {
		t.Fatalf("Expected status 400 checking in on archived habit, got %d", code)
	}
}

func TestResetPeriod(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")
	habit := createHabit(t, app, token, models.CreateHabitRequest{Name: "Steps", Period: "daily", Frequency: 2})
	checkinPath := fmt.Sprintf("/api/habits/%d/checkins", habit.ID)

	doJSON(t, app, "POST", checkinPath, token, nil)
	doJSON(t, app, "POST", checkinPath, token, nil)

	code, raw := doJSON(t, app, "DELETE", checkinPath+"/all", token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", code, raw)
	}
	var resetResp struct {
		Deleted      int `json:"deleted"`
		CurrentCount int `json:"current_count"`
	}
	json.Unmarshal(raw, &resetResp)
	if resetResp.Deleted != 2 || resetResp.CurrentCount != 0 {
		t.Fatalf("Expected 2 deleted and count 0, got %+v", resetResp)
	}
}

func TestOwnershipEnforced(t *testing.T) {
	app := setupTestApp(t)
	tokenA := registerUser(t, app, "alice")
	tokenB := registerUser(t, app, "bob")

	habit := createHabit(t, app, tokenA, models.CreateHabitRequest{Name: "Run"})

	code, _ := doJSON(t, app, "POST", fmt.Sprintf("/api/habits/%d/checkins", habit.ID), tokenB, nil)
	if code != 403 {
		t.Fatalf("Expected status 403 for foreign habit, got %d", code)
	}

	code, _ = doJSON(t, app, "GET", "/api/habits/99999", tokenA, nil)
	if code != 404 {
		t.Fatalf("Expected status 404 for missing habit, got %d", code)
	}

	code, _ = doJSON(t, app, "GET", "/api/habits/", "", nil)
	if code != 401 {
		t.Fatalf("Expected status 401 without token, got %d", code)
	}
}

func TestArchiveThenDelete(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")
	habit := createHabit(t, app, token, models.CreateHabitRequest{Name: "Old habit"})

	// Hard delete requires the archive step first
	code, _ := doJSON(t, app, "DELETE", fmt.Sprintf("/api/habits/%d", habit.ID), token, nil)
	if code != 400 {
		t.Fatalf("Expected status 400 deleting unarchived habit, got %d", code)
	}

	code, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/habits/%d/archive", habit.ID), token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200 archiving, got %d", code)
	}

	_, raw := doJSON(t, app, "GET", "/api/habits/", token, nil)
	var active []models.HabitWithProgress
	json.Unmarshal(raw, &active)
	if len(active) != 0 {
		t.Fatalf("Expected no active habits, got %d", len(active))
	}
	_, raw = doJSON(t, app, "GET", "/api/habits/archived", token, nil)
	var archived []models.Habit
	json.Unmarshal(raw, &archived)
	if len(archived) != 1 {
		t.Fatalf("Expected 1 archived habit, got %d", len(archived))
	}

	// Unarchive restores it to the active list
	code, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/habits/%d/unarchive", habit.ID), token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200 unarchiving, got %d", code)
	}
	_, raw = doJSON(t, app, "GET", "/api/habits/", token, nil)
	json.Unmarshal(raw, &active)
	if len(active) != 1 {
		t.Fatalf("Expected 1 active habit after unarchive, got %d", len(active))
	}

	doJSON(t, app, "POST", fmt.Sprintf("/api/habits/%d/archive", habit.ID), token, nil)
	code, _ = doJSON(t, app, "DELETE", fmt.Sprintf("/api/habits/%d", habit.ID), token, nil)
	if code != 200 {
		t.Fatalf("Expected status 200 deleting archived habit, got %d", code)
	}
}

func TestUpdateHabit(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")
	habit := createHabit(t, app, token, models.CreateHabitRequest{Name: "Read", Period: "daily", Frequency: 1})

	newName := "Read 30 pages"
	newFreq := 2
	code, raw := doJSON(t, app, "PUT", fmt.Sprintf("/api/habits/%d", habit.ID), token, models.UpdateHabitRequest{
		Name:      &newName,
		Frequency: &newFreq,
	})
	if code != 200 {
		t.Fatalf("Expected status 200, got %d: %s", code, raw)
	}
	var updated models.Habit
	json.Unmarshal(raw, &updated)
	if updated.Name != newName || updated.Frequency != 2 {
		t.Fatalf("Expected updated name/frequency, got %s/%d", updated.Name, updated.Frequency)
	}
	// Untouched fields keep their values
	if updated.Period != models.PeriodDaily {
		t.Fatalf("Expected period unchanged, got %s", updated.Period)
	}
}

func TestWeekStartSetting(t *testing.T) {
	app := setupTestApp(t)
	token := registerUser(t, app, "testuser")

	code, _ := doJSON(t, app, "PUT", "/api/user/settings", token, models.UpdateSettingsRequest{WeekStart: "friday"})
	if code != 400 {
		t.Fatalf("Expected status 400 for unknown week start, got %d", code)
	}

	code, _ = doJSON(t, app, "PUT", "/api/user/settings", token, models.UpdateSettingsRequest{WeekStart: "sunday"})
	if code != 200 {
		t.Fatalf("Expected status 200, got %d", code)
	}

	_, raw := doJSON(t, app, "GET", "/api/user/profile", token, nil)
	var profile map[string]any
	json.Unmarshal(raw, &profile)
	if profile["week_start"] != "sunday" {
		t.Fatalf("Expected week_start sunday, got %v", profile["week_start"])
	}
}
