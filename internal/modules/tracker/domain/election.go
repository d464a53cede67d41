package domain

import "time"

// Event describes a role transition produced by Observe or Tick.
type Event int

const (
	EventNone Event = iota
	// EventPromoted: the discovery window expired with no server seen.
	EventPromoted
	// EventDemoted: a higher (epoch, id) server claim was observed.
	EventDemoted
	// EventServerAdopted: a server became known while client or discovering.
	EventServerAdopted
	// EventServerLost: heartbeats from the server stopped; discovery restarts.
	EventServerLost
)

// Election is the per-instance view of the peer election. It is a pure
// state machine: time comes in through Observe and Tick arguments, so
// tests can drive it deterministically. The election is best effort:
// brief windows with zero or two servers are tolerated and self-heal
// within one heartbeat interval.
type Election struct {
	self            string
	role            Role
	epoch           uint64
	maxSeenEpoch    uint64
	serverID        string
	serverEpoch     uint64
	lastHeartbeat   time.Time
	discoveryEnd    time.Time
	discoveryWindow time.Duration
	livenessTimeout time.Duration
}

func NewElection(self string, discoveryWindow, livenessTimeout time.Duration, now time.Time) *Election {
	return &Election{
		self:            self,
		role:            RoleDiscovering,
		discoveryEnd:    now.Add(discoveryWindow),
		discoveryWindow: discoveryWindow,
		livenessTimeout: livenessTimeout,
	}
}

func (e *Election) Role() Role {
	return e.role
}

func (e *Election) Epoch() uint64 {
	if e.role == RoleServer {
		return e.epoch
	}
	return e.serverEpoch
}

// ServerID returns the instance currently believed to hold the server
// role, or "" when none is known.
func (e *Election) ServerID() string {
	if e.role == RoleServer {
		return e.self
	}
	return e.serverID
}

// Announcement is the claim this instance broadcasts on the next
// heartbeat.
func (e *Election) Announcement() Announcement {
	if e.role == RoleServer {
		return Announcement{InstanceID: e.self, Role: RoleServer, Epoch: e.epoch}
	}
	return Announcement{InstanceID: e.self, Role: RoleClient, Epoch: e.maxSeenEpoch}
}

// Observe folds a peer announcement into the election state.
func (e *Election) Observe(ann Announcement, now time.Time) Event {
	if ann.InstanceID == e.self {
		return EventNone
	}
	if ann.Epoch > e.maxSeenEpoch {
		e.maxSeenEpoch = ann.Epoch
	}
	if ann.Role != RoleServer {
		return EventNone
	}

	if e.role == RoleServer {
		if !ClaimWins(ann.Epoch, ann.InstanceID, e.epoch, e.self) {
			// We outrank the other claim; it reverts on seeing ours.
			return EventNone
		}
		e.role = RoleClient
		e.serverID = ann.InstanceID
		e.serverEpoch = ann.Epoch
		e.lastHeartbeat = now
		return EventDemoted
	}

	known := e.serverID != ""
	if known && ann.InstanceID != e.serverID && !ClaimWins(ann.Epoch, ann.InstanceID, e.serverEpoch, e.serverID) {
		return EventNone
	}
	adopted := !known || ann.InstanceID != e.serverID
	e.serverID = ann.InstanceID
	e.serverEpoch = ann.Epoch
	e.lastHeartbeat = now
	if e.role == RoleDiscovering {
		e.role = RoleClient
		return EventServerAdopted
	}
	if adopted {
		return EventServerAdopted
	}
	return EventNone
}

// Tick advances the time-driven transitions: end of the discovery
// window and server liveness.
func (e *Election) Tick(now time.Time) Event {
	switch e.role {
	case RoleDiscovering:
		if now.Before(e.discoveryEnd) {
			return EventNone
		}
		e.role = RoleServer
		e.epoch = e.maxSeenEpoch + 1
		if e.epoch > e.maxSeenEpoch {
			e.maxSeenEpoch = e.epoch
		}
		e.serverID = ""
		e.serverEpoch = 0
		return EventPromoted
	case RoleClient:
		if e.serverID == "" || now.Sub(e.lastHeartbeat) <= e.livenessTimeout {
			return EventNone
		}
		e.role = RoleDiscovering
		e.serverID = ""
		e.serverEpoch = 0
		e.discoveryEnd = now.Add(e.discoveryWindow)
		return EventServerLost
	default:
		return EventNone
	}
}
