package buildinfo

import "testing"

func TestSummary(t *testing.T) {
	oldV, oldH, oldB := Version, CommitHash, BuildTime
	defer func() { Version, CommitHash, BuildTime = oldV, oldH, oldB }()

	Version, CommitHash, BuildTime = "dev", "", ""
	if got := Summary("relay"); got != "relay dev" {
		t.Errorf("Summary = %q", got)
	}

	Version, CommitHash, BuildTime = "1.2.0", "abc123", "2025-01-01T00:00:00Z"
	if got, want := Summary("exam"), "exam 1.2.0 (abc123) built 2025-01-01T00:00:00Z"; got != want {
		t.Errorf("Summary = %q, want %q", got, want)
	}
}
