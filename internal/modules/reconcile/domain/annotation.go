package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEntryNotFound    = errors.New("no timesheet entry for the active job")
	ErrSheetUnavailable = errors.New("timesheet is unavailable")
	ErrLockBusy         = errors.New("timesheet is locked by another writer")
	ErrRepoUnavailable  = errors.New("not inside a git repository")
)

// Mode selects the commit-message annotation format.
type Mode string

const (
	ModeIssueRef       Mode = "issue-ref"
	ModeHumanAggregate Mode = "human-aggregate"
	ModeRawSeconds     Mode = "raw-seconds"
)

// FormatDuration renders seconds in the annotation duration notation:
// below one hour as "@<minutes>min", otherwise "@<hours>h<minutes>".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 3600 {
		return fmt.Sprintf("@%dmin", seconds/60)
	}
	return fmt.Sprintf("@%dh%d", seconds/3600, (seconds%3600)/60)
}

// Annotation holds everything needed to render one commit annotation.
// Elapsed is accumulated minus the last commit marker at quote time.
type Annotation struct {
	Project     string
	Job         string
	IssueID     string
	Accumulated int64
	Elapsed     int64
	Completed   bool
}

// Render produces the annotation line for the given mode. An empty
// string means nothing should be appended to the commit message, which
// happens in issue-ref mode when no issue id could be resolved.
func (a Annotation) Render(mode Mode) string {
	switch mode {
	case ModeIssueRef:
		if a.IssueID == "" {
			return ""
		}
		line := fmt.Sprintf("refs #%s %s", a.IssueID, FormatDuration(a.Elapsed))
		if a.Completed {
			line += fmt.Sprintf(" and closes #%s", a.IssueID)
		}
		return line
	case ModeHumanAggregate:
		return fmt.Sprintf("(%s.%s - total: %s commit: %s)",
			a.Project, a.Job, FormatDuration(a.Accumulated), FormatDuration(a.Elapsed))
	case ModeRawSeconds:
		return fmt.Sprintf("(%s.%s#%d#%d)", a.Project, a.Job, a.Accumulated, a.Elapsed)
	default:
		return ""
	}
}
