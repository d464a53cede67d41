package usecase

import (
	"context"

	"tmk/internal/modules/timesheet/domain"
	"tmk/internal/modules/timesheet/dto"
	sheetin "tmk/internal/modules/timesheet/port/in"
	"tmk/internal/modules/timesheet/service"
)

type Interactor struct {
	svc *service.SheetService
}

func NewInteractor(svc *service.SheetService) sheetin.Usecase {
	return &Interactor{svc: svc}
}

func (i *Interactor) ApplyDeltas(ctx context.Context, input dto.ApplyDeltasInput) (dto.ApplyDeltasOutput, error) {
	deltas := make([]domain.Delta, 0, len(input.Deltas))
	for _, d := range input.Deltas {
		deltas = append(deltas, domain.Delta{Project: d.Project, Job: d.Job, Seconds: d.Seconds})
	}
	created, err := i.svc.ApplyDeltas(ctx, deltas)
	if err != nil {
		return dto.ApplyDeltasOutput{}, err
	}
	return dto.ApplyDeltasOutput{Applied: len(deltas), Created: created}, nil
}

func (i *Interactor) Probe(ctx context.Context) error {
	return i.svc.Probe(ctx)
}

func (i *Interactor) GetEntry(ctx context.Context, project, job string) (dto.EntryOutput, error) {
	entry, err := i.svc.Get(ctx, project, job)
	if err != nil {
		return dto.EntryOutput{}, err
	}
	return mapEntry(entry), nil
}

func (i *Interactor) Attribute(ctx context.Context, project, job string) (dto.AttributeOutput, error) {
	elapsed, err := i.svc.Attribute(ctx, project, job)
	if err != nil {
		return dto.AttributeOutput{}, err
	}
	return dto.AttributeOutput{Elapsed: elapsed}, nil
}

func (i *Interactor) Complete(ctx context.Context, project, job string) error {
	return i.svc.Complete(ctx, project, job)
}

func (i *Interactor) Show(ctx context.Context) (dto.SheetOutput, error) {
	entries, malformed, err := i.svc.Show(ctx)
	if err != nil {
		return dto.SheetOutput{}, err
	}
	out := dto.SheetOutput{
		Path:      i.svc.Path(),
		Section:   i.svc.Section().String(),
		Entries:   make([]dto.EntryOutput, 0, len(entries)),
		Malformed: malformed,
	}
	for _, entry := range entries {
		out.Entries = append(out.Entries, mapEntry(entry))
	}
	return out, nil
}

func (i *Interactor) Report(ctx context.Context) (dto.ReportOutput, error) {
	rows, err := i.svc.Report(ctx)
	if err != nil {
		return dto.ReportOutput{}, err
	}
	out := dto.ReportOutput{Rows: make([]dto.ReportRowOutput, 0, len(rows))}
	for _, row := range rows {
		out.Rows = append(out.Rows, dto.ReportRowOutput{
			Host:        row.Host,
			User:        row.User,
			Project:     row.Project,
			Job:         row.Job,
			Accumulated: row.Accumulated,
			Pending:     row.Pending,
			Status:      row.Status,
		})
	}
	return out, nil
}

func mapEntry(entry domain.Entry) dto.EntryOutput {
	return dto.EntryOutput{
		Project:     entry.Project,
		Job:         entry.Job,
		Start:       entry.Start,
		Accumulated: entry.Accumulated,
		Marker:      entry.Marker,
		Pending:     entry.Pending(),
		Status:      string(entry.Status),
		Note:        entry.Note,
	}
}
