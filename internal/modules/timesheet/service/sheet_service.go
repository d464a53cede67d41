package service

import (
	"context"

	"github.com/charmbracelet/log"

	"tmk/internal/modules/timesheet/domain"
	sheetout "tmk/internal/modules/timesheet/port/out"
	"tmk/internal/platform/clock"
)

// SheetService owns every mutation of the sheet file for this (host,
// user) identity. The projector is optional; projection failures are
// logged and never fail the write that triggered them.
type SheetService struct {
	store     sheetout.SheetStore
	projector sheetout.ReportProjector
	clk       clock.Clock
	key       domain.SectionKey
	logger    *log.Logger
}

func NewSheetService(store sheetout.SheetStore, projector sheetout.ReportProjector, clk clock.Clock, key domain.SectionKey, logger *log.Logger) *SheetService {
	if logger == nil {
		logger = log.Default()
	}
	return &SheetService{store: store, projector: projector, clk: clk, key: key, logger: logger}
}

func (s *SheetService) Section() domain.SectionKey {
	return s.key
}

func (s *SheetService) Path() string {
	return s.store.Path()
}

// ApplyDeltas folds a batch of aggregated deltas into the sheet under
// one lock acquisition and one rewrite. Returns how many entries were
// newly created.
func (s *SheetService) ApplyDeltas(ctx context.Context, deltas []domain.Delta) (int, error) {
	if len(deltas) == 0 {
		return 0, nil
	}
	created := 0
	now := s.clk.Now().Unix()
	sheet, err := s.store.Update(ctx, func(sheet *domain.Sheet) error {
		for _, delta := range deltas {
			if sheet.ApplyDelta(s.key, delta.Project, delta.Job, delta.Seconds, now) {
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.project(ctx, sheet)
	return created, nil
}

// Probe verifies the sheet is writable without changing it, creating an
// empty file on first use.
func (s *SheetService) Probe(ctx context.Context) error {
	_, err := s.store.Update(ctx, func(*domain.Sheet) error { return nil })
	return err
}

func (s *SheetService) Get(ctx context.Context, project, job string) (domain.Entry, error) {
	sheet, err := s.store.Load(ctx)
	if err != nil {
		return domain.Entry{}, err
	}
	if sheet.Malformed > 0 {
		s.logger.Warn("sheet contains unparseable lines", "count", sheet.Malformed, "path", s.store.Path())
	}
	entry, ok := sheet.Find(s.key, project, job)
	if !ok {
		return domain.Entry{}, domain.ErrEntryNotFound
	}
	return entry, nil
}

// Attribute advances the commit marker of one entry to its current
// accumulated total, under the store lock.
func (s *SheetService) Attribute(ctx context.Context, project, job string) (int64, error) {
	var elapsed int64
	sheet, err := s.store.Update(ctx, func(sheet *domain.Sheet) error {
		var attributeErr error
		elapsed, attributeErr = sheet.Attribute(s.key, project, job)
		return attributeErr
	})
	if err != nil {
		return 0, err
	}
	s.project(ctx, sheet)
	return elapsed, nil
}

func (s *SheetService) Complete(ctx context.Context, project, job string) error {
	sheet, err := s.store.Update(ctx, func(sheet *domain.Sheet) error {
		return sheet.Complete(s.key, project, job)
	})
	if err != nil {
		return err
	}
	s.project(ctx, sheet)
	return nil
}

// Show lists the entries visible to the active section.
func (s *SheetService) Show(ctx context.Context) ([]domain.Entry, int, error) {
	sheet, err := s.store.Load(ctx)
	if err != nil {
		return nil, 0, err
	}
	return sheet.Entries(s.key), sheet.Malformed, nil
}

func (s *SheetService) Report(ctx context.Context) ([]sheetout.ReportRow, error) {
	if s.projector == nil {
		return []sheetout.ReportRow{}, nil
	}
	return s.projector.Totals(ctx)
}

func (s *SheetService) project(ctx context.Context, sheet domain.Sheet) {
	if s.projector == nil {
		return
	}
	if err := s.projector.Project(ctx, sheet.AllEntries()); err != nil {
		s.logger.Warn("report projection failed", "err", err)
	}
}
