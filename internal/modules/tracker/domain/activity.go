package domain

import "time"

type ActivityType string

const (
	ActivityPromoted   ActivityType = "promoted"
	ActivityDemoted    ActivityType = "demoted"
	ActivityServerLost ActivityType = "server_lost"
	ActivityFlushed    ActivityType = "flushed"
	ActivityDegraded   ActivityType = "degraded"
	ActivityClamped    ActivityType = "clamped"
)

// ActivityEvent is an append-only diagnostic record of role transitions
// and flushes, kept separate from the shared sheet.
type ActivityEvent struct {
	ID         string            `json:"id"`
	Type       ActivityType      `json:"type"`
	Message    string            `json:"message"`
	OccurredAt time.Time         `json:"occurred_at"`
	Fields     map[string]string `json:"fields,omitempty"`
}
