package domain

// Delta is one increment of active seconds for a (project, job) pair,
// already clamped by the aggregator.
type Delta struct {
	Project string
	Job     string
	Seconds int64
}
