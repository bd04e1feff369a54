package auth

import (
	"net/http/httptest"
	"os"
	"testing"

	"worklog/config"
	"worklog/db"
)

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test_auth.db"
	db.InitDB(dbPath)
	config.AppConfig.SessionKey = "test-secret-key-12345678901234567890123456789012"
	InitStore()

	// Run tests
	code := m.Run()

	// Teardown
	db.DB.Close()
	os.Remove(dbPath)

	os.Exit(code)
}

func TestSessionManagement(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/", nil)

	SetSession(w, r, "giulia", "supervisor")

	// Cookies land on the response; feed them back in a fresh request.
	cookies := w.Result().Cookies()
	r2 := httptest.NewRequest("GET", "/", nil)
	for _, c := range cookies {
		r2.AddCookie(c)
	}

	if GetUsername(r2) != "giulia" {
		t.Errorf("Expected username giulia, got %q", GetUsername(r2))
	}
	if GetRole(r2) != "supervisor" {
		t.Errorf("Expected role supervisor, got %q", GetRole(r2))
	}
	if !IsSupervisor(r2) {
		t.Error("IsSupervisor returned false for supervisor role")
	}

	// No cookie at all: empty identity.
	r3 := httptest.NewRequest("GET", "/", nil)
	if GetUsername(r3) != "" || IsSupervisor(r3) {
		t.Error("Expected empty identity without a session cookie")
	}
}

func TestAPITokenPersistence(t *testing.T) {
	token := CreateAPIToken("marco", "user")
	if token == "" {
		t.Fatal("Failed to create API token")
	}

	sess, ok := GetAPISession(token)
	if !ok {
		t.Fatal("Failed to retrieve API session by token")
	}
	if sess.Username != "marco" {
		t.Errorf("Expected username marco, got %s", sess.Username)
	}
	if sess.Role != "user" {
		t.Errorf("Expected role user, got %s", sess.Role)
	}

	_, ok = GetAPISession("invalid-token")
	if ok {
		t.Error("GetAPISession succeeded for invalid token")
	}

	DeleteAPITokens("marco")
	if _, ok := GetAPISession(token); ok {
		t.Error("Token survived DeleteAPITokens")
	}
}

func TestPasswordHashing(t *testing.T) {
	password := "mypassword"
	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	if !CheckPasswordHash(password, hash) {
		t.Error("CheckPasswordHash failed for correct password")
	}
	if CheckPasswordHash("wrongpassword", hash) {
		t.Error("CheckPasswordHash succeeded for wrong password")
	}

	if !IsHashed(hash) {
		t.Error("IsHashed returned false for a bcrypt hash")
	}
	if IsHashed("plaintext123") {
		t.Error("IsHashed returned true for plaintext")
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345"); err == nil {
		t.Error("5-char password should be rejected")
	}
	if err := ValidatePassword("123456"); err != nil {
		t.Errorf("6-char password should be accepted, got %v", err)
	}
}

func TestGenerateRandomToken(t *testing.T) {
	t1 := generateRandomToken(32)
	t2 := generateRandomToken(32)

	if t1 == t2 {
		t.Error("generateRandomToken produced identical tokens")
	}
}
