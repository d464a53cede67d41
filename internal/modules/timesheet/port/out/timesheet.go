package out

import (
	"context"

	"tmk/internal/modules/timesheet/domain"
)

// SheetStore is the durable sheet file. Update serializes writers via
// an exclusive advisory lock and replaces the file atomically; Load is
// a lock-free read for display and quoting.
type SheetStore interface {
	Load(ctx context.Context) (domain.Sheet, error)
	Update(ctx context.Context, fn func(*domain.Sheet) error) (domain.Sheet, error)
	Path() string
}

type ReportRow struct {
	Host        string
	User        string
	Project     string
	Job         string
	Accumulated int64
	Pending     int64
	Status      string
}

// ReportProjector mirrors sheet entries into a queryable projection.
type ReportProjector interface {
	Project(ctx context.Context, entries []domain.SectionEntry) error
	Totals(ctx context.Context) ([]ReportRow, error)
}
