package out

import (
	"context"
	"errors"
	"fmt"

	reconciledomain "tmk/internal/modules/reconcile/domain"
	reconcileout "tmk/internal/modules/reconcile/port/out"
	sheetdomain "tmk/internal/modules/timesheet/domain"
	sheetin "tmk/internal/modules/timesheet/port/in"
)

// SheetAccessAdapter bridges the reconciler to the timesheet module
// and maps store errors onto the reconcile domain sentinels.
type SheetAccessAdapter struct {
	sheets sheetin.Usecase
}

func NewSheetAccessAdapter(sheets sheetin.Usecase) *SheetAccessAdapter {
	return &SheetAccessAdapter{sheets: sheets}
}

var _ reconcileout.SheetAccess = (*SheetAccessAdapter)(nil)

func (a *SheetAccessAdapter) Get(ctx context.Context, project, job string) (reconcileout.EntrySnapshot, error) {
	entry, err := a.sheets.GetEntry(ctx, project, job)
	if err != nil {
		return reconcileout.EntrySnapshot{}, mapSheetError(err)
	}
	return reconcileout.EntrySnapshot{
		Accumulated: entry.Accumulated,
		Marker:      entry.Marker,
		Completed:   entry.Status == string(sheetdomain.StatusCompleted),
	}, nil
}

func (a *SheetAccessAdapter) Attribute(ctx context.Context, project, job string) (int64, error) {
	out, err := a.sheets.Attribute(ctx, project, job)
	if err != nil {
		return 0, mapSheetError(err)
	}
	return out.Elapsed, nil
}

func mapSheetError(err error) error {
	switch {
	case errors.Is(err, sheetdomain.ErrEntryNotFound):
		return fmt.Errorf("%w: %v", reconciledomain.ErrEntryNotFound, err)
	case errors.Is(err, sheetdomain.ErrLockTimeout):
		return fmt.Errorf("%w: %v", reconciledomain.ErrLockBusy, err)
	case errors.Is(err, sheetdomain.ErrSheetUnavailable):
		return fmt.Errorf("%w: %v", reconciledomain.ErrSheetUnavailable, err)
	default:
		return err
	}
}
