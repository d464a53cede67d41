package out

import (
	"context"

	"tmk/internal/modules/tracker/domain"
)

type TransportHandlers struct {
	OnAnnouncement func(domain.Announcement)
	OnReport       func(domain.DeltaReport)
}

type TransportStartInput struct {
	// Namespace scopes discovery so only instances sharing the same
	// sheet identity find each other.
	Namespace string
}

// RuntimeTransport is the live broadcast channel between peer
// instances. Send failures are reported but never fatal; callers retry
// on the next heartbeat tick.
type RuntimeTransport interface {
	InstanceID() string
	Announce(ctx context.Context, ann domain.Announcement) error
	SendReport(ctx context.Context, serverID string, report domain.DeltaReport) error
	PeerCount() int
	// ListenAddrs renders the full dialable addresses, for diagnostics.
	ListenAddrs() []string
	Stop() error
}

type Transport interface {
	Start(ctx context.Context, input TransportStartInput, handlers TransportHandlers) (RuntimeTransport, error)
}

// SheetApplier is the tracker's narrow view of the timesheet module.
type SheetApplier interface {
	Apply(ctx context.Context, deltas []domain.PendingDelta) error
	Probe(ctx context.Context) error
}

type DaemonStore interface {
	WritePID(ctx context.Context, pid int) error
	ReadPID(ctx context.Context) (int, error)
	ClearPID(ctx context.Context) error
	SocketPath() string
	LogPath() string
}

type ActivityStore interface {
	Append(ctx context.Context, event domain.ActivityEvent) error
	Tail(ctx context.Context, limit int) ([]domain.ActivityEvent, error)
}

type DaemonStatus struct {
	InstanceID     string
	Role           string
	Epoch          uint64
	ServerID       string
	PeerCount      int
	PendingSeconds int64
	DroppedSeconds int64
	Degraded       bool
	LastProject    string
	LastJob        string
	ListenAddrs    []string
}

type DaemonRuntimeStatus struct {
	Running    bool
	PID        int
	SocketPath string
	Status     DaemonStatus
}

// IPCHandler is the daemon-side surface the editor plumbing calls.
type IPCHandler interface {
	Report(ctx context.Context, project, job string, seconds int64) error
	Status(ctx context.Context) (DaemonStatus, error)
	Stop(ctx context.Context) error
}

type IPCServer interface {
	Serve(ctx context.Context, socketPath string, handler IPCHandler) error
}

type IPCClient interface {
	Report(ctx context.Context, socketPath, project, job string, seconds int64) error
	Status(ctx context.Context, socketPath string) (DaemonStatus, error)
	Stop(ctx context.Context, socketPath string) error
}
