package usecase

import (
	"context"

	"tmk/internal/modules/reconcile/dto"
	"tmk/internal/modules/reconcile/service"
)

type Interactor struct {
	svc *service.ReconcileService
}

func NewInteractor(svc *service.ReconcileService) *Interactor {
	return &Interactor{svc: svc}
}

func (i *Interactor) QuoteInto(ctx context.Context, msgPath string) error {
	return i.svc.QuoteInto(ctx, msgPath)
}

func (i *Interactor) Attribute(ctx context.Context) error {
	return i.svc.Attribute(ctx)
}

func (i *Interactor) InstallHooks(ctx context.Context) (dto.InstallHooksOutput, error) {
	written, err := i.svc.InstallHooks(ctx)
	if err != nil {
		return dto.InstallHooksOutput{}, err
	}
	return dto.InstallHooksOutput{Written: written}, nil
}
