package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// The sheet is a line-oriented comma-separated text format:
//
//	[hostname:username]
//	project,job,start,accumulated_seconds,last_commit_marker,status,note
//
// status and note are optional on input and default to open / empty.
// Lines that do not parse are carried through rewrites verbatim.

const (
	requiredFields = 5
	maxFields      = 7
)

// ParseSectionHeader reports whether line is a section header and, if
// so, the key it names.
func ParseSectionHeader(line string) (SectionKey, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
		return SectionKey{}, false
	}
	inner := trimmed[1 : len(trimmed)-1]
	host, user, ok := strings.Cut(inner, ":")
	if !ok {
		return SectionKey{}, false
	}
	return SectionKey{Host: host, User: user}, true
}

func EncodeSectionHeader(key SectionKey) string {
	return "[" + key.Host + ":" + key.User + "]"
}

// ParseEntry decodes one entry line. The note is the remainder after
// the sixth comma, so commas inside notes survive a round trip.
func ParseEntry(line string) (Entry, error) {
	fields := strings.SplitN(line, ",", maxFields)
	if len(fields) < requiredFields {
		return Entry{}, fmt.Errorf("%w: %d fields", ErrInvalidEntry, len(fields))
	}
	start, err := strconv.ParseInt(strings.TrimSpace(fields[2]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: start %q", ErrInvalidEntry, fields[2])
	}
	accumulated, err := strconv.ParseInt(strings.TrimSpace(fields[3]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: accumulated %q", ErrInvalidEntry, fields[3])
	}
	marker, err := strconv.ParseInt(strings.TrimSpace(fields[4]), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: marker %q", ErrInvalidEntry, fields[4])
	}
	entry := Entry{
		Project:     fields[0],
		Job:         fields[1],
		Start:       start,
		Accumulated: accumulated,
		Marker:      marker,
		Status:      StatusOpen,
	}
	if len(fields) > 5 && strings.TrimSpace(fields[5]) != "" {
		entry.Status = Status(strings.TrimSpace(fields[5]))
	}
	if len(fields) > 6 {
		entry.Note = fields[6]
	}
	// A marker ahead of the accumulated total can only come from a torn
	// write; pulling it back keeps the invariant without losing time.
	if entry.Marker > entry.Accumulated {
		entry.Marker = entry.Accumulated
	}
	if err := entry.Validate(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func EncodeEntry(e Entry) string {
	base := fmt.Sprintf("%s,%s,%d,%d,%d,%s", e.Project, e.Job, e.Start, e.Accumulated, e.Marker, e.Status)
	if e.Note == "" {
		return base
	}
	return base + "," + e.Note
}
