package bootstrap

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	reconcileinadapter "tmk/internal/modules/reconcile/adapter/in"
	reconcileoutadapter "tmk/internal/modules/reconcile/adapter/out"
	reconciledomain "tmk/internal/modules/reconcile/domain"
	reconcileservice "tmk/internal/modules/reconcile/service"
	reconcileusecase "tmk/internal/modules/reconcile/usecase"
	sheetinadapter "tmk/internal/modules/timesheet/adapter/in"
	sheetoutadapter "tmk/internal/modules/timesheet/adapter/out"
	sheetdomain "tmk/internal/modules/timesheet/domain"
	sheetservice "tmk/internal/modules/timesheet/service"
	sheetusecase "tmk/internal/modules/timesheet/usecase"
	trackerinadapter "tmk/internal/modules/tracker/adapter/in"
	trackeroutadapter "tmk/internal/modules/tracker/adapter/out"
	trackerservice "tmk/internal/modules/tracker/service"
	trackerusecase "tmk/internal/modules/tracker/usecase"
	"tmk/internal/platform/clock"
	"tmk/internal/platform/config"
	"tmk/internal/platform/id"
)

type App struct {
	Config config.Config

	SheetCLI     sheetinadapter.CLIHandler
	TrackerCLI   trackerinadapter.CLIHandler
	ReconcileCLI reconcileinadapter.CLIHandler
}

// New wires the modules together. Instance names the daemon runtime
// directory so several editor instances can run their own daemons
// against the same sheet.
func New(cfg config.Config, instance string) (*App, error) {
	clk := clock.SystemClock{}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "tmk",
	})

	sheetStore := sheetoutadapter.NewFileSheetStore(cfg.TimesheetPath)
	projector, err := sheetoutadapter.NewSQLiteReportProjector(filepath.Join(cfg.RuntimeDir, "report.db"))
	if err != nil {
		return nil, fmt.Errorf("new report projector: %w", err)
	}
	key := sheetdomain.SectionKey{Host: cfg.Host, User: cfg.User}
	sheetSvc := sheetservice.NewSheetService(sheetStore, projector, clk, key, logger)
	sheetUC := sheetusecase.NewInteractor(sheetSvc)

	trackerSvc := trackerservice.NewTrackerService(
		trackeroutadapter.NewSheetApplierAdapter(sheetUC),
		trackeroutadapter.NewLibp2pTransport(),
		trackeroutadapter.NewFileDaemonStore(cfg.RuntimeDir, instance),
		trackeroutadapter.NewJSONRPCServer(),
		trackeroutadapter.NewJSONRPCClient(),
		trackeroutadapter.NewFileActivityStore(cfg.RuntimeDir, id.RandomHex{}),
		clk,
		logger,
		Namespace(cfg),
		instance,
	)
	trackerUC := trackerusecase.NewInteractor(trackerSvc)

	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	binPath, err := os.Executable()
	if err != nil {
		binPath = "tmk"
	}
	reconcileSvc := reconcileservice.NewReconcileService(
		reconcileoutadapter.NewSheetAccessAdapter(sheetUC),
		reconcileoutadapter.NewGitRepo(workDir),
		reconcileoutadapter.NewFileHookInstaller(binPath),
		logger,
		reconcileservice.Options{
			TrackingEnabled: cfg.TrackingEnabled,
			IssueID:         cfg.IssueID,
			UseAnnotatedTag: cfg.UseAnnotatedTag,
			Mode:            reconciledomain.Mode(cfg.OutputMode),
		},
	)
	reconcileUC := reconcileusecase.NewInteractor(reconcileSvc)

	return &App{
		Config:       cfg,
		SheetCLI:     sheetinadapter.NewCLIHandler(sheetUC),
		TrackerCLI:   trackerinadapter.NewCLIHandler(trackerUC),
		ReconcileCLI: reconcileinadapter.NewCLIHandler(reconcileUC),
	}, nil
}

// Namespace scopes peer discovery to one sheet identity: instances
// only coordinate when they share the same sheet file and section.
func Namespace(cfg config.Config) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s", cfg.TimesheetPath, cfg.Host, cfg.User)
	return fmt.Sprintf("%x", h.Sum64())
}
