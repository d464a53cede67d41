package domain

import "errors"

type Role string

const (
	// RoleDiscovering is the bounded startup window spent listening for
	// an existing server before self-promoting.
	RoleDiscovering Role = "discovering"
	RoleClient      Role = "client"
	RoleServer      Role = "server"
)

var (
	ErrNoServer        = errors.New("no server instance known")
	ErrTransportClosed = errors.New("peer transport closed")
)

// Announcement is the ephemeral record every instance broadcasts on
// each heartbeat. It is never persisted.
type Announcement struct {
	InstanceID string `json:"instance_id"`
	Role       Role   `json:"role"`
	Epoch      uint64 `json:"epoch"`
}

// DeltaReport carries elapsed active seconds since the sender's last
// report. It is consumed once by the server and discarded; only its
// effect on the sheet persists.
type DeltaReport struct {
	InstanceID string `json:"instance_id"`
	Project    string `json:"project"`
	Job        string `json:"job"`
	Seconds    int64  `json:"seconds"`
}

// ClaimWins reports whether server claim a beats claim b. Highest
// (epoch, instance_id) wins; the ordering is total, so simultaneous
// promotions always resolve the same way on every peer.
func ClaimWins(aEpoch uint64, aID string, bEpoch uint64, bID string) bool {
	if aEpoch != bEpoch {
		return aEpoch > bEpoch
	}
	return aID > bID
}
