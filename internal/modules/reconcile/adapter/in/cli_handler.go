package in

import (
	"context"

	"tmk/internal/modules/reconcile/dto"
	reconcilein "tmk/internal/modules/reconcile/port/in"
)

type CLIHandler struct {
	usecase reconcilein.Usecase
}

func NewCLIHandler(usecase reconcilein.Usecase) CLIHandler {
	return CLIHandler{usecase: usecase}
}

func (h CLIHandler) Quote(ctx context.Context, msgPath string) error {
	return h.usecase.QuoteInto(ctx, msgPath)
}

func (h CLIHandler) Attribute(ctx context.Context) error {
	return h.usecase.Attribute(ctx)
}

func (h CLIHandler) InstallHooks(ctx context.Context) (dto.InstallHooksOutput, error) {
	return h.usecase.InstallHooks(ctx)
}
