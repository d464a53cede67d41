package domain

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusOpen      Status = "open"
	StatusCompleted Status = "completed"
)

var (
	ErrEntryNotFound    = errors.New("timesheet entry not found")
	ErrSheetUnavailable = errors.New("timesheet unavailable")
	ErrLockTimeout      = errors.New("timesheet lock not acquired")
	ErrEntryCompleted   = errors.New("timesheet entry already completed")
	ErrInvalidEntry     = errors.New("invalid timesheet entry")
)

// SectionKey identifies the (host, user) section of a shared sheet. The
// zero key names the headerless default section, which is always active.
type SectionKey struct {
	Host string
	User string
}

func (k SectionKey) IsZero() bool {
	return k.Host == "" && k.User == ""
}

func (k SectionKey) String() string {
	return k.Host + ":" + k.User
}

// Entry is one (project, job) row. Marker never exceeds Accumulated:
// equality means everything has been attributed to a commit already.
type Entry struct {
	Project     string
	Job         string
	Start       int64
	Accumulated int64
	Marker      int64
	Status      Status
	Note        string
}

func (e Entry) Validate() error {
	if e.Project == "" || e.Job == "" {
		return fmt.Errorf("%w: empty project or job", ErrInvalidEntry)
	}
	if e.Accumulated < 0 || e.Marker < 0 {
		return fmt.Errorf("%w: negative seconds", ErrInvalidEntry)
	}
	if e.Marker > e.Accumulated {
		return fmt.Errorf("%w: marker %d exceeds accumulated %d", ErrInvalidEntry, e.Marker, e.Accumulated)
	}
	switch e.Status {
	case StatusOpen, StatusCompleted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEntry, e.Status)
	}
	return nil
}

// Pending is the span not yet attributed to any commit.
func (e Entry) Pending() int64 {
	return e.Accumulated - e.Marker
}

func (e *Entry) AddSeconds(n int64) {
	if n < 0 {
		return
	}
	e.Accumulated += n
}

// Attribute advances the marker to the current accumulated total and
// returns the span it covered. Calling it twice in a row is a no-op the
// second time.
func (e *Entry) Attribute() int64 {
	elapsed := e.Accumulated - e.Marker
	e.Marker = e.Accumulated
	return elapsed
}

func (e *Entry) Complete() error {
	if e.Status == StatusCompleted {
		return ErrEntryCompleted
	}
	e.Status = StatusCompleted
	return nil
}
