package dto

import "time"

type ReportInput struct {
	Project string
	Job     string
	Seconds int64
}

type DaemonStatusOutput struct {
	Running        bool
	PID            int
	SocketPath     string
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

type ActivityEventOutput struct {
	ID         string
	Type       string
	Message    string
	OccurredAt time.Time
}
