package domain

import (
	"strings"
)

type LineKind int

const (
	// LineRaw covers blank and malformed lines, preserved verbatim.
	LineRaw LineKind = iota
	LineHeader
	LineEntry
)

// Line is one physical line of the sheet. Entry lines keep their
// original text and are only re-encoded once mutated, so inactive
// sections survive rewrites byte for byte.
type Line struct {
	Raw     string
	Kind    LineKind
	Section SectionKey
	Entry   Entry
	dirty   bool
}

type Sheet struct {
	Lines []Line
	// Malformed counts entry-shaped lines that failed to parse and are
	// carried through verbatim.
	Malformed int
	// noFinalNewline records that the parsed file did not end with a
	// newline, so Encode can reproduce the original terminator.
	noFinalNewline bool
}

// ParseSheet decodes the whole file. It never fails on bad lines; they
// are preserved as raw text.
func ParseSheet(content string) Sheet {
	sheet := Sheet{}
	if content == "" {
		return sheet
	}
	sheet.noFinalNewline = !strings.HasSuffix(content, "\n")
	current := SectionKey{}
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	for _, raw := range lines {
		if key, ok := ParseSectionHeader(raw); ok {
			current = key
			sheet.Lines = append(sheet.Lines, Line{Raw: raw, Kind: LineHeader, Section: key})
			continue
		}
		if strings.TrimSpace(raw) == "" {
			sheet.Lines = append(sheet.Lines, Line{Raw: raw, Kind: LineRaw, Section: current})
			continue
		}
		entry, err := ParseEntry(raw)
		if err != nil {
			sheet.Lines = append(sheet.Lines, Line{Raw: raw, Kind: LineRaw, Section: current})
			sheet.Malformed++
			continue
		}
		sheet.Lines = append(sheet.Lines, Line{Raw: raw, Kind: LineEntry, Section: current, Entry: entry})
	}
	return sheet
}

// Encode renders the sheet. Untouched lines are emitted exactly as
// read; only mutated entries are re-encoded.
func (s Sheet) Encode() string {
	if len(s.Lines) == 0 {
		return ""
	}
	var b strings.Builder
	for i, line := range s.Lines {
		if line.Kind == LineEntry && line.dirty {
			b.WriteString(EncodeEntry(line.Entry))
		} else {
			b.WriteString(line.Raw)
		}
		if i < len(s.Lines)-1 || !s.noFinalNewline {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// active reports whether a line belongs to the section owned by key.
// The headerless default section is active for every key.
func (s Sheet) active(line Line, key SectionKey) bool {
	return line.Section == key || line.Section.IsZero()
}

func (s *Sheet) find(key SectionKey, project, job string) int {
	// Prefer an exact section match over the default section.
	fallback := -1
	for i := range s.Lines {
		line := &s.Lines[i]
		if line.Kind != LineEntry || line.Entry.Project != project || line.Entry.Job != job {
			continue
		}
		if line.Section == key {
			return i
		}
		if line.Section.IsZero() && fallback < 0 {
			fallback = i
		}
	}
	return fallback
}

// Find returns the active entry for (project, job), if any.
func (s Sheet) Find(key SectionKey, project, job string) (Entry, bool) {
	idx := (&s).find(key, project, job)
	if idx < 0 {
		return Entry{}, false
	}
	return s.Lines[idx].Entry, true
}

// Entries lists every entry visible to key, in file order.
func (s Sheet) Entries(key SectionKey) []Entry {
	out := []Entry{}
	for _, line := range s.Lines {
		if line.Kind == LineEntry && s.active(line, key) {
			out = append(out, line.Entry)
		}
	}
	return out
}

// SectionEntry pairs an entry with the section that owns it, for
// consumers that span the whole file.
type SectionEntry struct {
	Section SectionKey
	Entry   Entry
}

func (s Sheet) AllEntries() []SectionEntry {
	out := []SectionEntry{}
	for _, line := range s.Lines {
		if line.Kind == LineEntry {
			out = append(out, SectionEntry{Section: line.Section, Entry: line.Entry})
		}
	}
	return out
}

// ApplyDelta adds seconds to the active (project, job) entry, creating
// it when first seen. Returns true when a new entry was created.
func (s *Sheet) ApplyDelta(key SectionKey, project, job string, seconds, now int64) bool {
	if idx := s.find(key, project, job); idx >= 0 {
		s.Lines[idx].Entry.AddSeconds(seconds)
		s.Lines[idx].dirty = true
		return false
	}
	entry := Entry{
		Project:     project,
		Job:         job,
		Start:       now,
		Accumulated: seconds,
		Status:      StatusOpen,
	}
	if seconds < 0 {
		entry.Accumulated = 0
	}
	s.insert(key, entry)
	return true
}

// Attribute advances the marker of the active entry to its current
// accumulated total, returning the attributed span.
func (s *Sheet) Attribute(key SectionKey, project, job string) (int64, error) {
	idx := s.find(key, project, job)
	if idx < 0 {
		return 0, ErrEntryNotFound
	}
	elapsed := s.Lines[idx].Entry.Attribute()
	if elapsed != 0 {
		s.Lines[idx].dirty = true
	}
	return elapsed, nil
}

// Complete marks the active entry completed. The transition is terminal.
func (s *Sheet) Complete(key SectionKey, project, job string) error {
	idx := s.find(key, project, job)
	if idx < 0 {
		return ErrEntryNotFound
	}
	if err := s.Lines[idx].Entry.Complete(); err != nil {
		return err
	}
	s.Lines[idx].dirty = true
	return nil
}

// insert places a new entry at the end of key's section, creating the
// section header when the file uses headers but lacks this one. A file
// with no headers at all stays headerless.
func (s *Sheet) insert(key SectionKey, entry Entry) {
	newLine := Line{Raw: EncodeEntry(entry), Kind: LineEntry, Section: key, Entry: entry, dirty: true}

	hasHeaders := false
	last := -1
	for i, line := range s.Lines {
		if line.Kind == LineHeader {
			hasHeaders = true
		}
		if line.Section == key {
			last = i
		}
	}
	if !hasHeaders {
		newLine.Section = SectionKey{}
		s.Lines = append(s.Lines, newLine)
		return
	}
	if last < 0 {
		header := Line{Raw: EncodeSectionHeader(key), Kind: LineHeader, Section: key}
		s.Lines = append(s.Lines, header, newLine)
		return
	}
	s.Lines = append(s.Lines, Line{})
	copy(s.Lines[last+2:], s.Lines[last+1:])
	s.Lines[last+1] = newLine
}
