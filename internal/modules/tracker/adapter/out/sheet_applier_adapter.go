package out

import (
	"context"

	sheetdto "tmk/internal/modules/timesheet/dto"
	sheetin "tmk/internal/modules/timesheet/port/in"
	"tmk/internal/modules/tracker/domain"
	trackerout "tmk/internal/modules/tracker/port/out"
)

// SheetApplierAdapter gives the tracker its narrow view of the
// timesheet module.
type SheetApplierAdapter struct {
	sheets sheetin.Usecase
}

func NewSheetApplierAdapter(sheets sheetin.Usecase) trackerout.SheetApplier {
	return &SheetApplierAdapter{sheets: sheets}
}

func (a *SheetApplierAdapter) Apply(ctx context.Context, deltas []domain.PendingDelta) error {
	input := sheetdto.ApplyDeltasInput{Deltas: make([]sheetdto.DeltaInput, 0, len(deltas))}
	for _, d := range deltas {
		input.Deltas = append(input.Deltas, sheetdto.DeltaInput{Project: d.Project, Job: d.Job, Seconds: d.Seconds})
	}
	_, err := a.sheets.ApplyDeltas(ctx, input)
	return err
}

func (a *SheetApplierAdapter) Probe(ctx context.Context) error {
	return a.sheets.Probe(ctx)
}
