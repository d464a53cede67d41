package in

import (
	"context"

	"tmk/internal/modules/tracker/dto"
	trackerin "tmk/internal/modules/tracker/port/in"
)

type CLIHandler struct {
	usecase trackerin.Usecase
}

func NewCLIHandler(usecase trackerin.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) StartDaemon(ctx context.Context) error {
	return h.usecase.StartDaemon(ctx)
}

func (h CLIHandler) StopDaemon(ctx context.Context) error {
	return h.usecase.StopDaemon(ctx)
}

func (h CLIHandler) RunDaemon(ctx context.Context) error {
	return h.usecase.RunDaemon(ctx)
}

func (h CLIHandler) Report(ctx context.Context, project, job string, seconds int64) error {
	return h.usecase.Report(ctx, dto.ReportInput{Project: project, Job: job, Seconds: seconds})
}

func (h CLIHandler) Status(ctx context.Context) (dto.DaemonStatusOutput, error) {
	return h.usecase.DaemonStatus(ctx)
}

func (h CLIHandler) Activity(ctx context.Context, limit int) ([]dto.ActivityEventOutput, error) {
	return h.usecase.ActivityTail(ctx, limit)
}
