package in

import (
	"context"

	"tmk/internal/modules/tracker/dto"
)

// Usecase is the tracker module's inbound surface: daemon lifecycle,
// activity reporting, and runtime diagnostics.
type Usecase interface {
	StartDaemon(ctx context.Context) error
	StopDaemon(ctx context.Context) error
	RunDaemon(ctx context.Context) error
	Report(ctx context.Context, input dto.ReportInput) error
	DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error)
	ActivityTail(ctx context.Context, limit int) ([]dto.ActivityEventOutput, error)
}
