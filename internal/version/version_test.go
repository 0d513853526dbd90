package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	old := Version
	Version = "9.9.9"
	defer func() { Version = old }()

	got := String()
	if !strings.HasPrefix(got, "nightshift 9.9.9 ") {
		t.Fatalf("String() = %q", got)
	}
}
