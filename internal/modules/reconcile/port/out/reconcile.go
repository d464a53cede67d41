package out

import "context"

// Repo resolves the active work item from version-control state.
type Repo interface {
	// Root returns the repository top-level directory.
	Root(ctx context.Context) (string, error)
	// Branch returns the current branch short name.
	Branch(ctx context.Context) (string, error)
	// NearestAnnotatedTag returns the closest annotated tag reachable
	// from HEAD.
	NearestAnnotatedTag(ctx context.Context) (string, error)
	// HooksDir returns the repository hooks directory.
	HooksDir(ctx context.Context) (string, error)
}

// EntrySnapshot is the reconciler's read view of one timesheet entry.
type EntrySnapshot struct {
	Accumulated int64
	Marker      int64
	Completed   bool
}

// SheetAccess is the reconciler's narrow view of the timesheet module.
// Implementations translate store errors into the reconcile domain
// sentinels so the service can decide which failures to absorb.
type SheetAccess interface {
	Get(ctx context.Context, project, job string) (EntrySnapshot, error)
	// Attribute advances the entry marker to the current accumulated
	// total and returns the attributed elapsed seconds.
	Attribute(ctx context.Context, project, job string) (int64, error)
}

// HookInstaller writes the commit hook shims into a hooks directory.
type HookInstaller interface {
	Install(hooksDir string) ([]string, error)
}
