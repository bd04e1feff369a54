// Package store bridges the in-memory tables and the remote spreadsheet.
// The Adapter does whole-table loads and saves with lossy cell coercion;
// Session (session.go) holds one login's mutable copy of both tables.
package store

import (
	"context"
	"log"
	"sync"
	"time"

	"worklog/models"
	"worklog/sheets"
)

// Adapter reads and writes the two worksheets backing the application.
// A per-sheet mutex keeps the revision check and the data write of one
// flush together; flushes from other processes are only guarded by the
// revision check itself and remain best-effort.
type Adapter struct {
	client          sheets.Client
	activitiesSheet string
	usersSheet      string
	actMu           sync.Mutex
	userMu          sync.Mutex
}

func NewAdapter(client sheets.Client, activitiesSheet, usersSheet string) *Adapter {
	return &Adapter{client: client, activitiesSheet: activitiesSheet, usersSheet: usersSheet}
}

// LoadActivities fetches the whole activity table. Malformed cells degrade
// to missing values, never to an error; an empty worksheet yields an empty
// table. The returned revision belongs to the snapshot and is passed back
// to SaveActivities.
func (a *Adapter) LoadActivities(ctx context.Context) ([]models.ActivityRecord, int64, error) {
	a.actMu.Lock()
	defer a.actMu.Unlock()

	// Revision first: if a flush lands in between, the stale revision makes
	// our own next flush fail and reload, which is the safe side.
	rev, err := a.client.Revision(ctx, a.activitiesSheet)
	if err != nil {
		return nil, 0, err
	}
	rows, err := a.client.ReadAll(ctx, a.activitiesSheet)
	if err != nil {
		return nil, 0, err
	}
	records := []models.ActivityRecord{}
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		records = append(records, RowToRecord(row))
	}
	return records, rev, nil
}

// SaveActivities serializes every record to text and rewrites the whole
// worksheet, header included. The write is guarded by a revision
// check-and-increment: when the remote table moved since fromRev, it
// returns sheets.ErrRevisionMismatch without touching the data. The mutex
// holds the bump and the overwrite together, so no other in-process flush
// can slip between them.
func (a *Adapter) SaveActivities(ctx context.Context, records []models.ActivityRecord, fromRev int64) (int64, error) {
	a.actMu.Lock()
	defer a.actMu.Unlock()

	newRev, err := a.client.BumpRevision(ctx, a.activitiesSheet, fromRev)
	if err != nil {
		return 0, err
	}
	rows := [][]string{models.ActivityColumns}
	for _, r := range records {
		rows = append(rows, RecordRow(r))
	}
	if err := a.client.Overwrite(ctx, a.activitiesSheet, rows); err != nil {
		return 0, err
	}
	return newRev, nil
}

// AppendActivities adds records after the current last row without touching
// the rest of the table. Used by the concurrency probe, not by the normal
// flush path. The revision is advanced so snapshot holders notice.
func (a *Adapter) AppendActivities(ctx context.Context, records []models.ActivityRecord) error {
	a.actMu.Lock()
	defer a.actMu.Unlock()

	rows := make([][]string, 0, len(records)+1)
	// An empty worksheet gets the header first, otherwise the first record
	// would be swallowed as the header on the next load.
	existing, err := a.client.ReadAll(ctx, a.activitiesSheet)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		rows = append(rows, models.ActivityColumns)
	}
	for _, r := range records {
		rows = append(rows, RecordRow(r))
	}
	if err := a.client.Append(ctx, a.activitiesSheet, rows); err != nil {
		return err
	}
	for attempt := 0; attempt < 3; attempt++ {
		rev, err := a.client.Revision(ctx, a.activitiesSheet)
		if err != nil {
			log.Printf("Revision read after append failed: %v", err)
			break
		}
		if _, err := a.client.BumpRevision(ctx, a.activitiesSheet, rev); err == nil {
			break
		}
	}
	return nil
}

// LoadUsers fetches the whole credentials table.
func (a *Adapter) LoadUsers(ctx context.Context) ([]models.UserAccount, int64, error) {
	a.userMu.Lock()
	defer a.userMu.Unlock()

	rev, err := a.client.Revision(ctx, a.usersSheet)
	if err != nil {
		return nil, 0, err
	}
	rows, err := a.client.ReadAll(ctx, a.usersSheet)
	if err != nil {
		return nil, 0, err
	}
	users := []models.UserAccount{}
	for i, row := range rows {
		if i == 0 {
			continue
		}
		row = pad(row, len(models.UserColumns))
		users = append(users, models.UserAccount{
			Username:     row[0],
			PasswordHash: row[1],
			Role:         row[2],
		})
	}
	return users, rev, nil
}

// SaveUsers rewrites the whole credentials table under the same revision
// guard as SaveActivities.
func (a *Adapter) SaveUsers(ctx context.Context, users []models.UserAccount, fromRev int64) (int64, error) {
	a.userMu.Lock()
	defer a.userMu.Unlock()

	newRev, err := a.client.BumpRevision(ctx, a.usersSheet, fromRev)
	if err != nil {
		return 0, err
	}
	rows := [][]string{models.UserColumns}
	for _, u := range users {
		rows = append(rows, []string{u.Username, u.PasswordHash, u.Role})
	}
	if err := a.client.Overwrite(ctx, a.usersSheet, rows); err != nil {
		return 0, err
	}
	return newRev, nil
}

// RecordRow serializes a record to its 13 text cells, in column order.
// Missing timestamps and numbers become empty strings.
func RecordRow(r models.ActivityRecord) []string {
	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.Format(models.TimeLayout)
	}
	return []string{
		models.Int(r.ID).String(),
		r.Owner,
		ts,
		r.MacroCategory,
		r.Subcategory,
		r.Activity,
		r.Notes,
		r.Hours.String(),
		r.Minutes.String(),
		r.SampleCount.String(),
		r.SampleDiseaseType,
		r.ReportCount.String(),
		r.ReportDiseaseType,
	}
}

// RowToRecord parses one raw row. Short rows are padded, unparsable cells
// become missing values.
func RowToRecord(row []string) models.ActivityRecord {
	row = pad(row, len(models.ActivityColumns))
	return models.ActivityRecord{
		ID:                models.ParseOptInt(row[0]).Or(0),
		Owner:             row[1],
		Timestamp:         parseTimestamp(row[2]),
		MacroCategory:     row[3],
		Subcategory:       row[4],
		Activity:          row[5],
		Notes:             row[6],
		Hours:             models.ParseOptInt(row[7]),
		Minutes:           models.ParseOptInt(row[8]),
		SampleCount:       models.ParseOptInt(row[9]),
		SampleDiseaseType: row[10],
		ReportCount:       models.ParseOptInt(row[11]),
		ReportDiseaseType: row[12],
	}
}

var timestampLayouts = []string{
	models.TimeLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02",
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func pad(row []string, n int) []string {
	for len(row) < n {
		row = append(row, "")
	}
	return row
}
