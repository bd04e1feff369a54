// Package sheets talks to the remote spreadsheet service. The rest of the
// application only sees whole-table reads, whole-table overwrites and an
// append primitive, plus a per-worksheet revision counter used for
// optimistic concurrency at flush time.
package sheets

import (
	"context"
	"errors"
)

// ErrRevisionMismatch is returned by BumpRevision when the remote revision
// moved since the caller loaded its snapshot. The caller is expected to
// reload and replay its pending changes.
var ErrRevisionMismatch = errors.New("sheets: revision mismatch")

// Client is a remote tabular store. All cells are text.
type Client interface {
	// ReadAll returns every row of the worksheet, header included.
	ReadAll(ctx context.Context, sheet string) ([][]string, error)

	// Overwrite destructively replaces the whole worksheet.
	Overwrite(ctx context.Context, sheet string, rows [][]string) error

	// Append adds rows after the current last row.
	Append(ctx context.Context, sheet string, rows [][]string) error

	// Revision returns the current revision counter for the worksheet.
	// A store without revision tracking reports 0.
	Revision(ctx context.Context, sheet string) (int64, error)

	// BumpRevision atomically advances the counter from the given value.
	// It returns ErrRevisionMismatch when the remote counter is no longer
	// at from.
	BumpRevision(ctx context.Context, sheet string, from int64) (int64, error)
}
