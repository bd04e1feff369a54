package db

import (
	"os"
	"testing"
)

func TestInitDB(t *testing.T) {
	dbPath := "./test_worklog.db"
	defer os.Remove(dbPath)

	InitDB(dbPath)
	if DB == nil {
		t.Fatal("DB was not initialized")
	}
	defer DB.Close()

	var count int
	err := DB.QueryRow("SELECT COUNT(*) FROM api_sessions").Scan(&count)
	if err != nil {
		t.Errorf("Could not query api_sessions table: %v", err)
	}

	_, err = DB.Exec("INSERT INTO api_sessions (token, username, role) VALUES (?, ?, ?)", "tok", "giulia", "user")
	if err != nil {
		t.Errorf("Could not insert api session: %v", err)
	}

	var username string
	err = DB.QueryRow("SELECT username FROM api_sessions WHERE token = ?", "tok").Scan(&username)
	if err != nil || username != "giulia" {
		t.Errorf("Unexpected row: username=%q err=%v", username, err)
	}
}
