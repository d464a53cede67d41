package in

import (
	"context"

	"tmk/internal/modules/timesheet/dto"
)

type Usecase interface {
	ApplyDeltas(ctx context.Context, input dto.ApplyDeltasInput) (dto.ApplyDeltasOutput, error)
	Probe(ctx context.Context) error
	GetEntry(ctx context.Context, project, job string) (dto.EntryOutput, error)
	Attribute(ctx context.Context, project, job string) (dto.AttributeOutput, error)
	Complete(ctx context.Context, project, job string) error
	Show(ctx context.Context) (dto.SheetOutput, error)
	Report(ctx context.Context) (dto.ReportOutput, error)
}
