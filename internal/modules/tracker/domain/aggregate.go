package domain

import (
	"sort"
	"time"
)

// ClampFactor bounds a single report to a multiple of the report
// interval. Anything above it is a clock-skew artifact, not activity.
const ClampFactor = 20

// ClampSeconds validates one reported delta. Negative or implausibly
// large values are clamped to zero so they can never corrupt the
// accumulated total downward or spike it upward.
func ClampSeconds(seconds int64, reportInterval time.Duration) (int64, bool) {
	if seconds < 0 {
		return 0, true
	}
	limit := int64(reportInterval/time.Second) * ClampFactor
	if limit > 0 && seconds > limit {
		return 0, true
	}
	return seconds, false
}

// ClampForwardedSeconds validates a delta relayed over the peer
// transport. Peers coalesce many individually valid reports between
// flushes, so a forwarded delta is bounded by the buffering cap rather
// than the single-report limit; zeroing it against the report interval
// would destroy legitimately accumulated time on handoff.
func ClampForwardedSeconds(seconds, maxBuffered int64) (int64, bool) {
	if seconds < 0 {
		return 0, true
	}
	if maxBuffered > 0 && seconds > maxBuffered {
		return 0, true
	}
	return seconds, false
}

// PendingDelta is an aggregated, not-yet-flushed increment.
type PendingDelta struct {
	Project string
	Job     string
	Seconds int64
}

// DeltaBuffer coalesces reports between flushes. Aggregation is plain
// addition, so cross-peer interleaving is safe. A full buffer drops
// further seconds rather than growing without bound (degraded mode when
// the sheet is unwritable).
type DeltaBuffer struct {
	pending map[[2]string]int64
	total   int64
	limit   int64
	dropped int64
}

func NewDeltaBuffer(maxSeconds int64) *DeltaBuffer {
	return &DeltaBuffer{pending: map[[2]string]int64{}, limit: maxSeconds}
}

// Add folds seconds into the buffer, reporting false when the buffer is
// full and the seconds were dropped.
func (b *DeltaBuffer) Add(project, job string, seconds int64) bool {
	if seconds <= 0 {
		return true
	}
	if b.limit > 0 && b.total+seconds > b.limit {
		b.dropped += seconds
		return false
	}
	b.pending[[2]string{project, job}] += seconds
	b.total += seconds
	return true
}

func (b *DeltaBuffer) Total() int64 {
	return b.total
}

func (b *DeltaBuffer) Dropped() int64 {
	return b.dropped
}

func (b *DeltaBuffer) Len() int {
	return len(b.pending)
}

// Drain empties the buffer and returns its contents in a stable order.
func (b *DeltaBuffer) Drain() []PendingDelta {
	out := make([]PendingDelta, 0, len(b.pending))
	for key, seconds := range b.pending {
		out = append(out, PendingDelta{Project: key[0], Job: key[1], Seconds: seconds})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Project != out[j].Project {
			return out[i].Project < out[j].Project
		}
		return out[i].Job < out[j].Job
	})
	b.pending = map[[2]string]int64{}
	b.total = 0
	return out
}

// Restore puts drained deltas back, used when a flush fails and the
// seconds should survive until the next attempt.
func (b *DeltaBuffer) Restore(deltas []PendingDelta) {
	for _, d := range deltas {
		b.Add(d.Project, d.Job, d.Seconds)
	}
}
