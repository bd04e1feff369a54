// Command syncprobe appends two marker rows to a scratch worksheet and reads
// them back, to verify that concurrent appends reach the spreadsheet without
// clobbering existing rows. Point it at a scratch sheet, never at the live
// activities worksheet.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"worklog/config"
	"worklog/models"
	"worklog/sheets"
	"worklog/store"

	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	sheetName := flag.String("sheet", "SyncProbe", "scratch worksheet to write to")
	offline := flag.Bool("offline", false, "run against an in-memory table instead of the spreadsheet")
	flag.Parse()

	godotenv.Load()
	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("config: %v", err)
	}

	if *sheetName == config.AppConfig.ActivitiesSheet {
		log.Fatalf("refusing to probe the live worksheet %q, pick a scratch sheet", *sheetName)
	}

	ctx := context.Background()
	client, err := newClient(ctx, *offline)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}

	adapter := store.NewAdapter(client, *sheetName, config.AppConfig.UsersSheet)

	before, _, err := adapter.LoadActivities(ctx)
	if err != nil {
		log.Fatalf("initial read: %v", err)
	}

	now := time.Now()
	probes := []models.ActivityRecord{
		probeRecord(1, now),
		probeRecord(2, now),
	}
	if err := adapter.AppendActivities(ctx, probes); err != nil {
		log.Fatalf("append: %v", err)
	}

	after, _, err := adapter.LoadActivities(ctx)
	if err != nil {
		log.Fatalf("re-read: %v", err)
	}

	ok := true
	if len(after) != len(before)+2 {
		fmt.Fprintf(os.Stderr, "FAIL: expected %d rows after append, found %d\n", len(before)+2, len(after))
		ok = false
	}
	for _, rec := range after {
		if rec.Timestamp.IsZero() {
			fmt.Fprintf(os.Stderr, "FAIL: row %d lost its timestamp\n", rec.ID)
			ok = false
		}
	}

	if !ok {
		os.Exit(1)
	}
	fmt.Printf("OK: %d rows before, %d after, all timestamps intact\n", len(before), len(after))
}

func probeRecord(n int, ts time.Time) models.ActivityRecord {
	return models.ActivityRecord{
		Owner:         "syncprobe",
		Timestamp:     ts,
		MacroCategory: "INFORMATICA",
		Subcategory:   "Programmazione",
		Activity:      fmt.Sprintf("Probe %d", n),
		Notes:         "synthetic row, safe to delete",
		Minutes:       models.OptInt{Value: n, Valid: true},
	}
}

func newClient(ctx context.Context, offline bool) (sheets.Client, error) {
	if offline || config.AppConfig.SpreadsheetID == "" {
		return sheets.NewMemory(), nil
	}
	var opts []option.ClientOption
	switch {
	case config.AppConfig.CredentialsJSON != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(config.AppConfig.CredentialsJSON)))
	case config.AppConfig.CredentialsFile != "":
		opts = append(opts, option.WithCredentialsFile(config.AppConfig.CredentialsFile))
	}
	return sheets.NewGoogle(ctx, config.AppConfig.SpreadsheetID, opts...)
}
