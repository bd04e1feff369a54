package config

import (
	"os"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	configContent := `{
		"app_name": "TestApp",
		"listen_ip": "127.0.0.1",
		"listen_port": 9090,
		"session_key": "test-session-key",
		"spreadsheet_id": "sheet-id-123",
		"activities_sheet": "Attivita",
		"users_sheet": "Utenti"
	}`
	tmpfile, err := os.CreateTemp("", "config.json")
	if err != nil {
		t.Fatalf("Failed to create temporary file: %v", err)
	}
	defer os.Remove(tmpfile.Name())

	if _, err := tmpfile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temporary file: %v", err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatalf("Failed to close temporary file: %v", err)
	}

	err = LoadConfig(tmpfile.Name())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if AppConfig.AppName != "TestApp" {
		t.Errorf("Expected AppName 'TestApp', got '%s'", AppConfig.AppName)
	}
	if AppConfig.ListenPort != 9090 {
		t.Errorf("Expected ListenPort 9090, got %d", AppConfig.ListenPort)
	}
	if AppConfig.SpreadsheetID != "sheet-id-123" {
		t.Errorf("Expected SpreadsheetID 'sheet-id-123', got '%s'", AppConfig.SpreadsheetID)
	}
	if AppConfig.ActivitiesSheet != "Attivita" || AppConfig.UsersSheet != "Utenti" {
		t.Errorf("Sheet names not loaded: %s / %s", AppConfig.ActivitiesSheet, AppConfig.UsersSheet)
	}
}

func TestLoadConfigDefaultsAndEnvOverride(t *testing.T) {
	tmpfile, _ := os.CreateTemp("", "config.json")
	defer os.Remove(tmpfile.Name())
	tmpfile.Write([]byte(`{"app_name": "Minimal"}`))
	tmpfile.Close()

	os.Setenv("WORKLOG_SPREADSHEET_ID", "env-sheet-id")
	defer os.Unsetenv("WORKLOG_SPREADSHEET_ID")

	if err := LoadConfig(tmpfile.Name()); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if AppConfig.ActivitiesSheet != "Activities" || AppConfig.UsersSheet != "Users" {
		t.Errorf("Expected default sheet names, got %s / %s", AppConfig.ActivitiesSheet, AppConfig.UsersSheet)
	}
	if AppConfig.SpreadsheetID != "env-sheet-id" {
		t.Errorf("Env override not applied: %s", AppConfig.SpreadsheetID)
	}
	if AppConfig.SessionKey == "" {
		t.Error("Expected a generated session key")
	}
}

func TestLoadConfigInvalidPath(t *testing.T) {
	err := LoadConfig("non-existent-path.json")
	if err == nil {
		t.Error("LoadConfig with non-existent path should have failed")
	}
}

func TestLoadConfigInvalidJSON(t *testing.T) {
	tmpfile, _ := os.CreateTemp("", "invalid_config.json")
	defer os.Remove(tmpfile.Name())
	tmpfile.Write([]byte(`{ "invalid": json }`))
	tmpfile.Close()

	err := LoadConfig(tmpfile.Name())
	if err == nil {
		t.Error("LoadConfig with invalid JSON should have failed")
	}
}
