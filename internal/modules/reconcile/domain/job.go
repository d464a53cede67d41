package domain

import "strings"

// JobRef identifies the active work item resolved from the repository:
// the project is the repo directory name, the job is the branch or the
// nearest annotated tag.
type JobRef struct {
	Project string
	Job     string
}

func (r JobRef) Valid() bool {
	return r.Project != "" && r.Job != ""
}

// IssueFromRef extracts an issue id from a "#<digits>" suffix on a
// branch or tag name, e.g. "feature/x#501" yields "501". Returns ""
// when the ref carries no such suffix.
func IssueFromRef(ref string) string {
	i := strings.LastIndex(ref, "#")
	if i < 0 || i == len(ref)-1 {
		return ""
	}
	digits := ref[i+1:]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return digits
}
