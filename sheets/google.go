package sheets

import (
	"context"
	"fmt"
	"strconv"

	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

// metaSheet is the worksheet holding one "<sheet name>, <revision>" row per
// tracked data worksheet. Spreadsheets without it still work, they just
// lose conflict detection.
const metaSheet = "Meta"

// Google accesses one spreadsheet through the Sheets v4 API with read/write
// scope.
type Google struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// NewGoogle builds a client for the given spreadsheet. Credentials come in
// through opts (option.WithCredentialsFile or option.WithCredentialsJSON).
func NewGoogle(ctx context.Context, spreadsheetID string, opts ...option.ClientOption) (*Google, error) {
	opts = append(opts, option.WithScopes(sheetsapi.SpreadsheetsScope))
	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: creating service: %w", err)
	}
	return &Google{svc: svc, spreadsheetID: spreadsheetID}, nil
}

func (g *Google) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, sheet).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: reading %s: %w", sheet, err)
	}
	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, len(raw))
		for i, cell := range raw {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (g *Google) Overwrite(ctx context.Context, sheet string, rows [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Clear(g.spreadsheetID, sheet, &sheetsapi.ClearValuesRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: clearing %s: %w", sheet, err)
	}
	_, err = g.svc.Spreadsheets.Values.Update(g.spreadsheetID, sheet+"!A1", toValueRange(rows)).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: rewriting %s: %w", sheet, err)
	}
	return nil
}

func (g *Google) Append(ctx context.Context, sheet string, rows [][]string) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, sheet, toValueRange(rows)).
		ValueInputOption("RAW").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: appending to %s: %w", sheet, err)
	}
	return nil
}

func (g *Google) Revision(ctx context.Context, sheet string) (int64, error) {
	_, rev, err := g.findRevision(ctx, sheet)
	if err != nil {
		// No Meta worksheet: degrade to untracked.
		return 0, nil
	}
	return rev, nil
}

func (g *Google) BumpRevision(ctx context.Context, sheet string, from int64) (int64, error) {
	rowIndex, cur, err := g.findRevision(ctx, sheet)
	if err != nil {
		// Untracked spreadsheet, nothing to compare against.
		return from + 1, nil
	}
	if cur != from {
		return 0, ErrRevisionMismatch
	}
	next := from + 1
	cell := [][]string{{strconv.FormatInt(next, 10)}}
	if rowIndex < 0 {
		if err := g.Append(ctx, metaSheet, [][]string{{sheet, strconv.FormatInt(next, 10)}}); err != nil {
			return 0, err
		}
		return next, nil
	}
	_, err = g.svc.Spreadsheets.Values.Update(g.spreadsheetID,
		fmt.Sprintf("%s!B%d", metaSheet, rowIndex+1), toValueRange(cell)).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("sheets: updating revision for %s: %w", sheet, err)
	}
	return next, nil
}

// findRevision returns the 0-based Meta row index for the sheet (-1 when
// absent) and the current revision value.
func (g *Google) findRevision(ctx context.Context, sheet string) (int, int64, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, metaSheet).Context(ctx).Do()
	if err != nil {
		return -1, 0, err
	}
	for i, raw := range resp.Values {
		if len(raw) < 2 || fmt.Sprint(raw[0]) != sheet {
			continue
		}
		rev, err := strconv.ParseInt(fmt.Sprint(raw[1]), 10, 64)
		if err != nil {
			rev = 0
		}
		return i, rev, nil
	}
	return -1, 0, nil
}

func toValueRange(rows [][]string) *sheetsapi.ValueRange {
	values := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}
	return &sheetsapi.ValueRange{Values: values}
}
