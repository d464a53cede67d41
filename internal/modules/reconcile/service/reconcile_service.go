package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"tmk/internal/modules/reconcile/domain"
	reconcileout "tmk/internal/modules/reconcile/port/out"
)

// lockRetryBackoff is the single backoff before the attribute phase
// gives up on a contended store lock.
const lockRetryBackoff = 150 * time.Millisecond

// Options carry the reconciler's slice of the configuration.
type Options struct {
	TrackingEnabled bool
	IssueID         string
	UseAnnotatedTag bool
	Mode            domain.Mode
}

// ReconcileService implements the two commit phases: quote reads the
// pending time and renders an annotation, attribute advances the
// marker after the commit lands. Every failure on these paths is
// absorbed; a commit is never blocked by a missing annotation.
type ReconcileService struct {
	sheets reconcileout.SheetAccess
	repo   reconcileout.Repo
	hooks  reconcileout.HookInstaller
	logger *log.Logger
	opts   Options
}

func NewReconcileService(
	sheets reconcileout.SheetAccess,
	repo reconcileout.Repo,
	hooks reconcileout.HookInstaller,
	logger *log.Logger,
	opts Options,
) *ReconcileService {
	if logger == nil {
		logger = log.Default()
	}
	return &ReconcileService{sheets: sheets, repo: repo, hooks: hooks, logger: logger, opts: opts}
}

// ResolveJob derives the active (project, job) from repository state:
// project from the top-level directory name, job from the branch or,
// when configured, the nearest annotated tag.
func (s *ReconcileService) ResolveJob(ctx context.Context) (domain.JobRef, error) {
	root, err := s.repo.Root(ctx)
	if err != nil {
		return domain.JobRef{}, err
	}
	var job string
	if s.opts.UseAnnotatedTag {
		job, err = s.repo.NearestAnnotatedTag(ctx)
	} else {
		job, err = s.repo.Branch(ctx)
	}
	if err != nil {
		return domain.JobRef{}, err
	}
	ref := domain.JobRef{Project: filepath.Base(root), Job: job}
	if !ref.Valid() {
		return domain.JobRef{}, fmt.Errorf("%w: empty project or job", domain.ErrRepoUnavailable)
	}
	return ref, nil
}

// Quote computes the annotation for the in-flight commit. An empty
// annotation with a nil error means nothing should be appended; the
// store is never mutated here.
func (s *ReconcileService) Quote(ctx context.Context) (string, error) {
	if !s.opts.TrackingEnabled {
		return "", nil
	}
	ref, err := s.ResolveJob(ctx)
	if err != nil {
		s.logger.Debug("quote skipped, no active job", "err", err)
		return "", nil
	}
	snapshot, err := s.sheets.Get(ctx, ref.Project, ref.Job)
	if err != nil {
		if absorbed(err) {
			s.logger.Debug("quote skipped", "project", ref.Project, "job", ref.Job, "err", err)
			return "", nil
		}
		return "", err
	}
	elapsed := snapshot.Accumulated - snapshot.Marker
	if elapsed < 0 {
		elapsed = 0
	}
	issue := s.opts.IssueID
	if issue == "" {
		issue = domain.IssueFromRef(ref.Job)
	}
	ann := domain.Annotation{
		Project:     ref.Project,
		Job:         ref.Job,
		IssueID:     issue,
		Accumulated: snapshot.Accumulated,
		Elapsed:     elapsed,
		Completed:   snapshot.Completed,
	}
	return ann.Render(s.opts.Mode), nil
}

// QuoteInto appends the quoted annotation to the commit message file.
// Write failures are absorbed like every other failure on this path.
func (s *ReconcileService) QuoteInto(ctx context.Context, msgPath string) error {
	annotation, err := s.Quote(ctx)
	if err != nil {
		return err
	}
	if annotation == "" {
		return nil
	}
	message, err := os.ReadFile(msgPath)
	if err != nil {
		s.logger.Debug("commit message unreadable, skipping annotation", "path", msgPath, "err", err)
		return nil
	}
	out := string(message)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out += "\n"
	}
	out += annotation + "\n"
	if err := os.WriteFile(msgPath, []byte(out), 0o644); err != nil {
		s.logger.Warn("could not append annotation to commit message", "path", msgPath, "err", err)
	}
	return nil
}

// Attribute advances the entry marker to the current accumulated
// total. A contended lock is retried once; a missing entry or an
// unavailable store is a silent no-op so the next commit simply
// carries a larger window.
func (s *ReconcileService) Attribute(ctx context.Context) error {
	if !s.opts.TrackingEnabled {
		return nil
	}
	ref, err := s.ResolveJob(ctx)
	if err != nil {
		s.logger.Debug("attribute skipped, no active job", "err", err)
		return nil
	}
	elapsed, err := s.sheets.Attribute(ctx, ref.Project, ref.Job)
	if errors.Is(err, domain.ErrLockBusy) {
		time.Sleep(lockRetryBackoff)
		elapsed, err = s.sheets.Attribute(ctx, ref.Project, ref.Job)
	}
	if err != nil {
		if absorbed(err) {
			s.logger.Debug("attribute skipped", "project", ref.Project, "job", ref.Job, "err", err)
			return nil
		}
		return err
	}
	s.logger.Debug("attributed commit time", "project", ref.Project, "job", ref.Job, "seconds", elapsed)
	return nil
}

// InstallHooks writes the prepare-commit-msg and post-commit shims
// into the repository hooks directory.
func (s *ReconcileService) InstallHooks(ctx context.Context) ([]string, error) {
	hooksDir, err := s.repo.HooksDir(ctx)
	if err != nil {
		return nil, err
	}
	return s.hooks.Install(hooksDir)
}

func absorbed(err error) bool {
	return errors.Is(err, domain.ErrEntryNotFound) ||
		errors.Is(err, domain.ErrSheetUnavailable) ||
		errors.Is(err, domain.ErrLockBusy) ||
		errors.Is(err, domain.ErrRepoUnavailable)
}
