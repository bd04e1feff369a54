package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"worklog/auth"
	"worklog/config"
	"worklog/db"
	"worklog/models"
	"worklog/sheets"
	"worklog/store"
)

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test_handlers.db"
	db.InitDB(dbPath)
	config.AppConfig.SessionKey = "test-secret-key-for-handler-tests"
	config.AppConfig.AppName = "WorklogTest"
	auth.InitStore()

	// Run tests
	code := m.Run()

	// Teardown
	db.DB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

// setupManager points the package at a fresh in-memory backend with one
// regular user and one supervisor.
func setupManager(t *testing.T) *sheets.Memory {
	t.Helper()
	ctx := context.Background()

	client := sheets.NewMemory()
	adapter := store.NewAdapter(client, "Activities", "Users")

	annaHash, err := auth.HashPassword("anna-password")
	if err != nil {
		t.Fatal(err)
	}
	chiefHash, err := auth.HashPassword("chief-password")
	if err != nil {
		t.Fatal(err)
	}
	_, err = adapter.SaveUsers(ctx, []models.UserAccount{
		{Username: "anna", PasswordHash: annaHash, Role: models.RoleUser},
		{Username: "chief", PasswordHash: chiefHash, Role: models.RoleSupervisor},
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	manager = store.NewManager(adapter)
	return client
}

func apiLogin(t *testing.T, username, password string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	req := httptest.NewRequest("POST", "/api/v1/login", bytes.NewBuffer(body))
	req.RemoteAddr = "10.1.1.1:4000"
	w := httptest.NewRecorder()

	APILoginHandler(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Login failed, expected 200, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	token := resp.Data.(map[string]interface{})["token"].(string)
	if token == "" {
		t.Fatal("Login did not return a token")
	}
	return token
}

func apiCall(token, method, target string, payload any) *httptest.ResponseRecorder {
	var body *bytes.Buffer = bytes.NewBuffer(nil)
	if payload != nil {
		b, _ := json.Marshal(payload)
		body = bytes.NewBuffer(b)
	}
	req := httptest.NewRequest(method, target, body)
	if token != "" {
		req.Header.Set("X-API-Token", token)
	}
	w := httptest.NewRecorder()
	switch {
	case target == "/api/v1/report":
		APIReportHandler(w, req)
	case method == "GET":
		APIListActivitiesHandler(w, req)
	case method == "POST":
		APIAddActivityHandler(w, req)
	case method == "PUT":
		APIUpdateActivityHandler(w, req)
	case method == "DELETE":
		APIDeleteActivityHandler(w, req)
	}
	return w
}

func validPayload() map[string]any {
	return map[string]any{
		"timestamp":      "2025-06-10 09:30:00",
		"macro_category": "LABORATORIO",
		"subcategory":    "Lavoro al bancone",
		"activity":       "Estrazione DNA",
		"hours":          2,
		"minutes":        30,
	}
}

func TestAPIActivityCRUD(t *testing.T) {
	setupManager(t)
	token := apiLogin(t, "anna", "anna-password")

	// Create
	w := apiCall(token, "POST", "/api/v1/activities", validPayload())
	if w.Code != http.StatusCreated {
		t.Fatalf("Add activity failed, expected 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	id := int(resp.Data.(map[string]interface{})["id"].(float64))
	if id != 1 {
		t.Errorf("Expected first activity to get id 1, got %d", id)
	}

	// List
	w = apiCall(token, "GET", "/api/v1/activities", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List failed, expected 200, got %d", w.Code)
	}
	json.NewDecoder(w.Body).Decode(&resp)
	data := resp.Data.(map[string]interface{})
	if int(data["total"].(float64)) != 1 {
		t.Errorf("Expected 1 activity in list, got %v", data["total"])
	}

	// Update
	update := validPayload()
	update["id"] = id
	update["notes"] = "repeated extraction"
	w = apiCall(token, "PUT", "/api/v1/activities", update)
	if w.Code != http.StatusOK {
		t.Fatalf("Update failed, expected 200, got %d. Body: %s", w.Code, w.Body.String())
	}

	// Delete
	w = apiCall(token, "DELETE", "/api/v1/activities", map[string]int{"id": id})
	if w.Code != http.StatusOK {
		t.Fatalf("Delete failed, expected 200, got %d", w.Code)
	}

	w = apiCall(token, "GET", "/api/v1/activities", nil)
	json.NewDecoder(w.Body).Decode(&resp)
	data = resp.Data.(map[string]interface{})
	if int(data["total"].(float64)) != 0 {
		t.Errorf("Expected empty list after delete, got %v", data["total"])
	}
}

func TestAPIValidationRejected(t *testing.T) {
	setupManager(t)
	token := apiLogin(t, "anna", "anna-password")

	payload := validPayload()
	payload["macro_category"] = "GARDENING"
	w := apiCall(token, "POST", "/api/v1/activities", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown macro category, got %d", w.Code)
	}

	payload = validPayload()
	payload["hours"] = 30
	w = apiCall(token, "POST", "/api/v1/activities", payload)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for out-of-range hours, got %d", w.Code)
	}

	// Nothing may have reached the store.
	w = apiCall(token, "GET", "/api/v1/activities", nil)
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if total := resp.Data.(map[string]interface{})["total"].(float64); total != 0 {
		t.Errorf("Rejected activities leaked into the store, total=%v", total)
	}
}

func TestAPIUnauthorized(t *testing.T) {
	setupManager(t)

	w := apiCall("", "GET", "/api/v1/activities", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}

	w = apiCall("bogus-token", "GET", "/api/v1/activities", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with unknown token, got %d", w.Code)
	}
}

func TestAPIReportSupervisorOnly(t *testing.T) {
	setupManager(t)
	userToken := apiLogin(t, "anna", "anna-password")
	bossToken := apiLogin(t, "chief", "chief-password")

	apiCall(userToken, "POST", "/api/v1/activities", validPayload())

	w := apiCall(userToken, "GET", "/api/v1/report", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for regular user, got %d", w.Code)
	}

	w = apiCall(bossToken, "GET", "/api/v1/report", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 for supervisor, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	data := resp.Data.(map[string]interface{})
	if int(data["total"].(float64)) != 1 {
		t.Errorf("Supervisor report should see anna's activity, total=%v", data["total"])
	}
}

func TestAPISupervisorSeesAllOwnersCannotBeEditedByOthers(t *testing.T) {
	setupManager(t)
	userToken := apiLogin(t, "anna", "anna-password")
	bossToken := apiLogin(t, "chief", "chief-password")

	w := apiCall(userToken, "POST", "/api/v1/activities", validPayload())
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	id := int(resp.Data.(map[string]interface{})["id"].(float64))

	// The supervisor may edit anyone's record.
	update := validPayload()
	update["id"] = id
	w = apiCall(bossToken, "PUT", "/api/v1/activities", update)
	if w.Code != http.StatusOK {
		t.Errorf("Supervisor update rejected, got %d", w.Code)
	}

	// A regular user may not touch a record that is not theirs.
	w = apiCall(userToken, "DELETE", "/api/v1/activities", map[string]int{"id": 999})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 deleting a record the user does not own, got %d", w.Code)
	}
}

func TestAPIFlushFailureReturnsWarning(t *testing.T) {
	client := setupManager(t)
	token := apiLogin(t, "anna", "anna-password")

	client.FailWrites(true)
	w := apiCall(token, "POST", "/api/v1/activities", validPayload())
	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected 202 when the remote write fails, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if resp.Status != "warning" {
		t.Errorf("Expected warning status, got %s", resp.Status)
	}

	// The change is visible locally even though the sync failed.
	client.FailWrites(false)
	w = apiCall(token, "GET", "/api/v1/activities", nil)
	json.NewDecoder(w.Body).Decode(&resp)
	if total := resp.Data.(map[string]interface{})["total"].(float64); total != 1 {
		t.Errorf("Locally applied activity missing from list, total=%v", total)
	}
}

func TestAPILoginRateLimiting(t *testing.T) {
	setupManager(t)

	sendLogin := func(ip string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{
			"username": "anna",
			"password": "wrong-password",
		})
		req := httptest.NewRequest("POST", "/api/v1/login", bytes.NewBuffer(body))
		req.RemoteAddr = ip + ":12345"
		w := httptest.NewRecorder()
		APILoginHandler(w, req)
		return w
	}

	ip := "192.168.7.7"
	for i := 0; i < 5; i++ {
		w := sendLogin(ip)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("Expected 401 for wrong password, got %d", w.Code)
		}
	}

	w := sendLogin(ip)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after repeated failures, got %d", w.Code)
	}

	// A different IP is unaffected.
	w = sendLogin("10.9.9.9")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for different IP, got %d", w.Code)
	}
}
