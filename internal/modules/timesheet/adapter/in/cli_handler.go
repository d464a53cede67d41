package in

import (
	"context"

	"tmk/internal/modules/timesheet/dto"
	sheetin "tmk/internal/modules/timesheet/port/in"
)

type CLIHandler struct {
	usecase sheetin.Usecase
}

func NewCLIHandler(usecase sheetin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Show(ctx context.Context) (dto.SheetOutput, error) {
	return h.usecase.Show(ctx)
}

func (h CLIHandler) Report(ctx context.Context) (dto.ReportOutput, error) {
	return h.usecase.Report(ctx)
}

func (h CLIHandler) Complete(ctx context.Context, project, job string) error {
	return h.usecase.Complete(ctx, project, job)
}
