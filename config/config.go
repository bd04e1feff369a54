package config

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
)

type Config struct {
	AppName         string `json:"app_name"`
	ListenIP        string `json:"listen_ip"`
	ListenPort      int    `json:"listen_port"`
	SessionKey      string `json:"session_key"`
	SpreadsheetID   string `json:"spreadsheet_id"`
	ActivitiesSheet string `json:"activities_sheet"`
	UsersSheet      string `json:"users_sheet"`
	// Service-account credentials: either a file path or the raw JSON
	// bundle supplied through the environment.
	CredentialsFile string `json:"credentials_file"`
	CredentialsJSON string `json:"-"`
}

var AppConfig Config

func LoadConfig(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&AppConfig); err != nil {
		return err
	}

	// Override with environment variables if present
	if envKey := os.Getenv("WORKLOG_SESSION_KEY"); envKey != "" {
		AppConfig.SessionKey = envKey
	}
	if id := os.Getenv("WORKLOG_SPREADSHEET_ID"); id != "" {
		AppConfig.SpreadsheetID = id
	}
	if f := os.Getenv("GOOGLE_CREDENTIALS_FILE"); f != "" {
		AppConfig.CredentialsFile = f
	}
	AppConfig.CredentialsJSON = os.Getenv("GOOGLE_CREDENTIALS_JSON")

	if AppConfig.ActivitiesSheet == "" {
		AppConfig.ActivitiesSheet = "Activities"
	}
	if AppConfig.UsersSheet == "" {
		AppConfig.UsersSheet = "Users"
	}

	// If no key is provided or it's the placeholder, generate a secure random one
	if AppConfig.SessionKey == "" || AppConfig.SessionKey == "CHANGE_ME_IN_PRODUCTION" {
		log.Println("WARNING: No session key configured. Generating a random key. Sessions will be invalidated on restart.")
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err != nil {
			return err
		}
		AppConfig.SessionKey = hex.EncodeToString(randomKey)
	}

	return nil
}
