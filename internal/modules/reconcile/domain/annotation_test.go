package domain

import "testing"

func TestFormatDuration(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		seconds int64
		want    string
	}{
		{"zero", 0, "@0min"},
		{"under a minute", 59, "@0min"},
		{"forty nine minutes", 49 * 60, "@49min"},
		{"just under an hour", 3599, "@59min"},
		{"exactly one hour", 3600, "@1h0"},
		{"two hours", 7200, "@2h0"},
		{"ninety minutes", 5400, "@1h30"},
		{"negative clamps to zero", -120, "@0min"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatDuration(tc.seconds); got != tc.want {
				t.Errorf("FormatDuration(%d) = %q, want %q", tc.seconds, got, tc.want)
			}
		})
	}
}

func TestRenderHumanAggregate(t *testing.T) {
	t.Parallel()
	a := Annotation{Project: "proj", Job: "jobA", Accumulated: 7200, Elapsed: 3600}
	want := "(proj.jobA - total: @2h0 commit: @1h0)"
	if got := a.Render(ModeHumanAggregate); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderRawSeconds(t *testing.T) {
	t.Parallel()
	a := Annotation{Project: "proj", Job: "jobA", Accumulated: 7200, Elapsed: 3600}
	want := "(proj.jobA#7200#3600)"
	if got := a.Render(ModeRawSeconds); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderIssueRef(t *testing.T) {
	t.Parallel()
	a := Annotation{Project: "proj", Job: "feature/x#501", IssueID: "501", Elapsed: 49 * 60}
	want := "refs #501 @49min"
	if got := a.Render(ModeIssueRef); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderIssueRefCompleted(t *testing.T) {
	t.Parallel()
	a := Annotation{IssueID: "42", Elapsed: 600, Completed: true}
	want := "refs #42 @10min and closes #42"
	if got := a.Render(ModeIssueRef); got != want {
		t.Errorf("Render = %q, want %q", got, want)
	}
}

func TestRenderIssueRefWithoutIssueIsEmpty(t *testing.T) {
	t.Parallel()
	a := Annotation{Project: "proj", Job: "main", Elapsed: 600}
	if got := a.Render(ModeIssueRef); got != "" {
		t.Errorf("Render = %q, want empty", got)
	}
}

func TestIssueFromRef(t *testing.T) {
	t.Parallel()
	cases := []struct {
		ref  string
		want string
	}{
		{"feature/x#501", "501"},
		{"bugfix#7", "7"},
		{"main", ""},
		{"feature/x#", ""},
		{"feature/x#5a1", ""},
		{"release#1.2", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := IssueFromRef(tc.ref); got != tc.want {
			t.Errorf("IssueFromRef(%q) = %q, want %q", tc.ref, got, tc.want)
		}
	}
}
