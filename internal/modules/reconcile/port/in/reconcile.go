package in

import (
	"context"

	"tmk/internal/modules/reconcile/dto"
)

// Usecase is the commit-hook surface: the quote phase before the
// commit message is finalized, the attribute phase after the commit
// lands, plus hook installation.
type Usecase interface {
	QuoteInto(ctx context.Context, msgPath string) error
	Attribute(ctx context.Context) error
	InstallHooks(ctx context.Context) (dto.InstallHooksOutput, error)
}
