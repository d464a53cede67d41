package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"tmk/internal/modules/reconcile/domain"
	reconcileout "tmk/internal/modules/reconcile/port/out"
)

type fakeRepo struct {
	root    string
	branch  string
	tag     string
	repoErr error
}

func (r *fakeRepo) Root(context.Context) (string, error) {
	return r.root, r.repoErr
}

func (r *fakeRepo) Branch(context.Context) (string, error) {
	return r.branch, r.repoErr
}

func (r *fakeRepo) NearestAnnotatedTag(context.Context) (string, error) {
	return r.tag, r.repoErr
}

func (r *fakeRepo) HooksDir(context.Context) (string, error) {
	return filepath.Join(r.root, ".git", "hooks"), r.repoErr
}

type fakeSheetAccess struct {
	snapshot   reconcileout.EntrySnapshot
	getErr     error
	attrErrs   []error
	attributed int
}

func (a *fakeSheetAccess) Get(context.Context, string, string) (reconcileout.EntrySnapshot, error) {
	if a.getErr != nil {
		return reconcileout.EntrySnapshot{}, a.getErr
	}
	return a.snapshot, nil
}

func (a *fakeSheetAccess) Attribute(context.Context, string, string) (int64, error) {
	if a.attributed < len(a.attrErrs) {
		err := a.attrErrs[a.attributed]
		a.attributed++
		if err != nil {
			return 0, err
		}
		return a.snapshot.Accumulated - a.snapshot.Marker, nil
	}
	a.attributed++
	return a.snapshot.Accumulated - a.snapshot.Marker, nil
}

func newService(repo *fakeRepo, sheets *fakeSheetAccess, opts Options) *ReconcileService {
	return NewReconcileService(sheets, repo, nil, log.New(io.Discard), opts)
}

func TestQuoteHumanAggregate(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "jobA"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 7200, Marker: 3600}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, Mode: domain.ModeHumanAggregate})

	got, err := svc.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	want := "(proj.jobA - total: @2h0 commit: @1h0)"
	if got != want {
		t.Errorf("Quote = %q, want %q", got, want)
	}
}

func TestQuoteRawSeconds(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "jobA"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 7200, Marker: 3600}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, Mode: domain.ModeRawSeconds})

	got, err := svc.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if want := "(proj.jobA#7200#3600)"; got != want {
		t.Errorf("Quote = %q, want %q", got, want)
	}
}

func TestQuoteIssueRefFromBranchSuffix(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "feature/x#501"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 49 * 60, Marker: 0}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, Mode: domain.ModeIssueRef})

	got, err := svc.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if want := "refs #501 @49min"; got != want {
		t.Errorf("Quote = %q, want %q", got, want)
	}
}

func TestQuoteIssueRefExplicitIDWins(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "feature/x#501"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 600}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, IssueID: "9000", Mode: domain.ModeIssueRef})

	got, err := svc.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if want := "refs #9000 @10min"; got != want {
		t.Errorf("Quote = %q, want %q", got, want)
	}
}

func TestQuoteCompletedEntryCloses(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "fix#7"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 600, Completed: true}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, Mode: domain.ModeIssueRef})

	got, err := svc.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if want := "refs #7 @10min and closes #7"; got != want {
		t.Errorf("Quote = %q, want %q", got, want)
	}
}

func TestQuoteUsesAnnotatedTagWhenConfigured(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "main", tag: "sprint-4#88"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 120}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, UseAnnotatedTag: true, Mode: domain.ModeIssueRef})

	got, err := svc.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if want := "refs #88 @2min"; got != want {
		t.Errorf("Quote = %q, want %q", got, want)
	}
}

func TestQuoteDisabledTrackingIsSilent(t *testing.T) {
	t.Parallel()
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, &fakeSheetAccess{}, Options{TrackingEnabled: false, Mode: domain.ModeRawSeconds})
	got, err := svc.Quote(context.Background())
	if err != nil || got != "" {
		t.Errorf("Quote = (%q, %v), want empty and nil", got, err)
	}
}

func TestQuoteAbsorbsMissingEntry(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{getErr: domain.ErrEntryNotFound}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true, Mode: domain.ModeRawSeconds})
	got, err := svc.Quote(context.Background())
	if err != nil || got != "" {
		t.Errorf("Quote = (%q, %v), want empty and nil", got, err)
	}
}

func TestQuoteAbsorbsUnavailableSheet(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{getErr: domain.ErrSheetUnavailable}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true, Mode: domain.ModeHumanAggregate})
	got, err := svc.Quote(context.Background())
	if err != nil || got != "" {
		t.Errorf("Quote = (%q, %v), want empty and nil", got, err)
	}
}

func TestQuoteAbsorbsMissingRepo(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{repoErr: domain.ErrRepoUnavailable}
	svc := newService(repo, &fakeSheetAccess{}, Options{TrackingEnabled: true, Mode: domain.ModeRawSeconds})
	got, err := svc.Quote(context.Background())
	if err != nil || got != "" {
		t.Errorf("Quote = (%q, %v), want empty and nil", got, err)
	}
}

func TestQuoteIntoAppendsAnnotation(t *testing.T) {
	t.Parallel()
	repo := &fakeRepo{root: "/home/alice/proj", branch: "jobA"}
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 7200, Marker: 3600}}
	svc := newService(repo, sheets, Options{TrackingEnabled: true, Mode: domain.ModeRawSeconds})

	msgPath := filepath.Join(t.TempDir(), "COMMIT_EDITMSG")
	if err := os.WriteFile(msgPath, []byte("fix parser"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.QuoteInto(context.Background(), msgPath); err != nil {
		t.Fatalf("QuoteInto: %v", err)
	}
	message, err := os.ReadFile(msgPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "fix parser\n(proj.jobA#7200#3600)\n"
	if string(message) != want {
		t.Errorf("message = %q, want %q", message, want)
	}
}

func TestQuoteIntoLeavesMessageWhenNoAnnotation(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{getErr: domain.ErrEntryNotFound}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true, Mode: domain.ModeRawSeconds})

	msgPath := filepath.Join(t.TempDir(), "COMMIT_EDITMSG")
	if err := os.WriteFile(msgPath, []byte("fix parser\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := svc.QuoteInto(context.Background(), msgPath); err != nil {
		t.Fatalf("QuoteInto: %v", err)
	}
	message, _ := os.ReadFile(msgPath)
	if string(message) != "fix parser\n" {
		t.Errorf("message = %q, want unchanged", message)
	}
}

func TestAttributeAdvancesMarker(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{snapshot: reconcileout.EntrySnapshot{Accumulated: 7200, Marker: 3600}}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true})
	if err := svc.Attribute(context.Background()); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if sheets.attributed != 1 {
		t.Errorf("attributed %d times, want 1", sheets.attributed)
	}
}

func TestAttributeRetriesOnceOnLockContention(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{attrErrs: []error{domain.ErrLockBusy, nil}}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true})
	if err := svc.Attribute(context.Background()); err != nil {
		t.Fatalf("Attribute: %v", err)
	}
	if sheets.attributed != 2 {
		t.Errorf("attributed %d times, want 2", sheets.attributed)
	}
}

func TestAttributeGivesUpAfterSecondLockFailure(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{attrErrs: []error{domain.ErrLockBusy, domain.ErrLockBusy}}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true})
	if err := svc.Attribute(context.Background()); err != nil {
		t.Errorf("Attribute = %v, want nil after giving up", err)
	}
	if sheets.attributed != 2 {
		t.Errorf("attributed %d times, want 2", sheets.attributed)
	}
}

func TestAttributeAbsorbsMissingEntry(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{attrErrs: []error{domain.ErrEntryNotFound}}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true})
	if err := svc.Attribute(context.Background()); err != nil {
		t.Errorf("Attribute = %v, want nil", err)
	}
	if sheets.attributed != 1 {
		t.Errorf("attributed %d times, want 1", sheets.attributed)
	}
}

func TestAttributeDisabledTrackingSkipsStore(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: false})
	if err := svc.Attribute(context.Background()); err != nil {
		t.Errorf("Attribute = %v, want nil", err)
	}
	if sheets.attributed != 0 {
		t.Errorf("store touched %d times with tracking disabled", sheets.attributed)
	}
}

func TestResolveJobUsesRepoBasename(t *testing.T) {
	t.Parallel()
	svc := newService(&fakeRepo{root: "/home/alice/website", branch: "redesign"}, &fakeSheetAccess{}, Options{TrackingEnabled: true})
	ref, err := svc.ResolveJob(context.Background())
	if err != nil {
		t.Fatalf("ResolveJob: %v", err)
	}
	if ref.Project != "website" || ref.Job != "redesign" {
		t.Errorf("ref = %+v, want website/redesign", ref)
	}
}

func TestUnexpectedGetErrorPropagates(t *testing.T) {
	t.Parallel()
	sheets := &fakeSheetAccess{getErr: errors.New("disk exploded")}
	svc := newService(&fakeRepo{root: "/p", branch: "b"}, sheets, Options{TrackingEnabled: true, Mode: domain.ModeRawSeconds})
	if _, err := svc.Quote(context.Background()); err == nil || !strings.Contains(err.Error(), "disk exploded") {
		t.Errorf("Quote err = %v, want the unexpected error surfaced", err)
	}
}
