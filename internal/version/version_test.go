package version

import "testing"

func TestString(t *testing.T) {
	defer func(v, sha, at string) { Version, GitSHA, BuildTime = v, sha, at }(Version, GitSHA, BuildTime)

	if got := String(); got != "dev (unknown, built unknown)" {
		t.Errorf("String() = %q", got)
	}

	Version, GitSHA, BuildTime = "v0.3.0", "1a2b3c4", "2026-03-04T10:15:00Z"
	if got, want := String(), "v0.3.0 (1a2b3c4, built 2026-03-04T10:15:00Z)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
