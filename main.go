package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"worklog/auth"
	"worklog/config"
	"worklog/db"
	"worklog/handlers"
	"worklog/i18n"
	"worklog/sheets"
	"worklog/store"

	"github.com/gorilla/csrf"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() {
	// A missing .env is fine, the config file and environment take over.
	godotenv.Load()

	if err := config.LoadConfig("config.json"); err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	if err := i18n.LoadTranslations("i18n"); err != nil {
		log.Fatalf("Error loading translations: %v", err)
	}

	auth.InitStore()

	db.InitDB("./worklog.db")
	defer db.DB.Close()

	ctx := context.Background()
	client, err := newSheetsClient(ctx)
	if err != nil {
		log.Fatalf("Error connecting to spreadsheet: %v", err)
	}

	adapter := store.NewAdapter(client, config.AppConfig.ActivitiesSheet, config.AppConfig.UsersSheet)
	manager := store.NewManager(adapter)
	if err := manager.Bootstrap(ctx); err != nil {
		log.Fatalf("Error bootstrapping user table: %v", err)
	}

	mux := http.NewServeMux()

	// Static files
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir("static"))))

	handlers.RegisterHandlers(mux, manager)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.ListenIP, config.AppConfig.ListenPort)
	log.Printf("Server starting on %s (%s)", addr, config.AppConfig.AppName)

	csrfMiddleware := csrf.Protect(
		[]byte(config.AppConfig.SessionKey),
		csrf.Secure(false), // Set to true in production with HTTPS
		csrf.Path("/"),
	)

	handler := handlers.CORSMiddleware(csrfMiddleware(handlers.SecurityHeadersMiddleware(mux)))
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}

// newSheetsClient picks the spreadsheet backend. Without a spreadsheet id
// the app runs on an in-memory table, which is enough for local work.
func newSheetsClient(ctx context.Context) (sheets.Client, error) {
	cfg := config.AppConfig
	if cfg.SpreadsheetID == "" {
		log.Println("No spreadsheet configured, using in-memory store")
		return sheets.NewMemory(), nil
	}

	var opts []option.ClientOption
	switch {
	case cfg.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.CredentialsJSON)))
	case cfg.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	return sheets.NewGoogle(ctx, cfg.SpreadsheetID, opts...)
}
