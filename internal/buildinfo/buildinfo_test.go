package buildinfo

import (
	"strings"
	"testing"
)

func TestStringAndUserAgent(t *testing.T) {
	if got := String(); !strings.Contains(got, "Version: "+Version) || !strings.Contains(got, "Commit: "+Commit) {
		t.Fatalf("String() = %q", got)
	}
	if got := UserAgent(); got != "NowPlaying/"+Version {
		t.Fatalf("UserAgent() = %q", got)
	}
}
