package usecase

import (
	"context"

	"tmk/internal/modules/tracker/dto"
	"tmk/internal/modules/tracker/service"
)

type Interactor struct {
	svc *service.TrackerService
}

func NewInteractor(svc *service.TrackerService) *Interactor {
	return &Interactor{svc: svc}
}

func (i *Interactor) StartDaemon(ctx context.Context) error {
	return i.svc.StartDaemon(ctx)
}

func (i *Interactor) StopDaemon(ctx context.Context) error {
	return i.svc.StopDaemon(ctx)
}

func (i *Interactor) RunDaemon(ctx context.Context) error {
	return i.svc.RunDaemon(ctx)
}

// Report forwards activity seconds to the running daemon over IPC,
// starting it first when necessary.
func (i *Interactor) Report(ctx context.Context, input dto.ReportInput) error {
	if err := i.svc.StartDaemon(ctx); err != nil {
		return err
	}
	return i.svc.ReportViaIPC(ctx, input.Project, input.Job, input.Seconds)
}

func (i *Interactor) DaemonStatus(ctx context.Context) (dto.DaemonStatusOutput, error) {
	status, err := i.svc.DaemonStatus(ctx)
	if err != nil {
		return dto.DaemonStatusOutput{}, err
	}
	return dto.DaemonStatusOutput{
		Running:        status.Running,
		PID:            status.PID,
		SocketPath:     status.SocketPath,
		InstanceID:     status.Status.InstanceID,
		Role:           status.Status.Role,
		Epoch:          status.Status.Epoch,
		ServerID:       status.Status.ServerID,
		PeerCount:      status.Status.PeerCount,
		PendingSeconds: status.Status.PendingSeconds,
		DroppedSeconds: status.Status.DroppedSeconds,
		Degraded:       status.Status.Degraded,
		LastProject:    status.Status.LastProject,
		LastJob:        status.Status.LastJob,
		ListenAddrs:    status.Status.ListenAddrs,
	}, nil
}

func (i *Interactor) ActivityTail(ctx context.Context, limit int) ([]dto.ActivityEventOutput, error) {
	events, err := i.svc.ActivityTail(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]dto.ActivityEventOutput, 0, len(events))
	for _, e := range events {
		out = append(out, dto.ActivityEventOutput{
			ID:         e.ID,
			Type:       string(e.Type),
			Message:    e.Message,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}
