package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"worklog/config"
	"worklog/db"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

var Store *sessions.CookieStore

func InitStore() {
	// Derive two 32-byte keys from the session key to ensure secure encryption
	// Auth key for signing (HMAC)
	authKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "auth"))
	// Encryption key for content encryption (AES)
	encKey := sha256.Sum256([]byte(config.AppConfig.SessionKey + "encryption"))

	Store = sessions.NewCookieStore(authKey[:], encKey[:])

	Store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7, // 7 days
		HttpOnly: true,
		Secure:   config.AppConfig.ListenPort != 8080, // Default to true unless dev port
		SameSite: http.SameSiteLaxMode,
	}
}

const SessionName = "worklog-session"

func GetUsername(r *http.Request) string {
	session, _ := Store.Get(r, SessionName)
	if name, ok := session.Values["username"].(string); ok {
		return name
	}
	return ""
}

func GetRole(r *http.Request) string {
	session, _ := Store.Get(r, SessionName)
	if role, ok := session.Values["role"].(string); ok {
		return role
	}
	return ""
}

func IsSupervisor(r *http.Request) bool {
	return GetRole(r) == "supervisor"
}

func SetSession(w http.ResponseWriter, r *http.Request, username, role string) {
	session, _ := Store.Get(r, SessionName)
	session.Values["username"] = username
	session.Values["role"] = role
	session.Save(r, w)
}

func ClearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := Store.Get(r, SessionName)
	session.Options.MaxAge = -1
	session.Save(r, w)
}

// MinPasswordLength is the policy applied to new passwords.
const MinPasswordLength = 6

var ErrPasswordTooShort = errors.New("password too short")

func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), 12)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsHashed reports whether a stored credential is a bcrypt hash. Legacy
// rows imported from the old spreadsheet may still hold plaintext.
func IsHashed(stored string) bool {
	return strings.HasPrefix(stored, "$2a$") ||
		strings.HasPrefix(stored, "$2b$") ||
		strings.HasPrefix(stored, "$2y$")
}

// DummyHash is compared against when a username does not exist, so that
// lookups take the same time either way.
var DummyHash, _ = HashPassword("worklog-dummy-password")

// Token-based Auth for API (Persistent)
type APISession struct {
	Username string
	Role     string
}

func CreateAPIToken(username, role string) string {
	token := generateRandomToken(32)

	_, err := db.DB.Exec("INSERT INTO api_sessions (token, username, role) VALUES (?, ?, ?)",
		token, username, role)
	if err != nil {
		fmt.Printf("Error creating API token in DB: %v\n", err)
		return ""
	}

	return token
}

func GetAPISession(token string) (APISession, bool) {
	var sess APISession
	err := db.DB.QueryRow("SELECT username, role FROM api_sessions WHERE token = ?", token).
		Scan(&sess.Username, &sess.Role)
	if err != nil {
		return APISession{}, false
	}
	return sess, true
}

// DeleteAPITokens drops every persistent token for a user, e.g. after a
// password change.
func DeleteAPITokens(username string) {
	db.DB.Exec("DELETE FROM api_sessions WHERE username = ?", username)
}

func generateRandomToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// If we can't generate random numbers, the system is in a critical state.
		// Panic is appropriate here as we cannot securely continue.
		panic(fmt.Sprintf("critical security error: failed to generate random token: %v", err))
	}
	return base64.URLEncoding.EncodeToString(b)
}
