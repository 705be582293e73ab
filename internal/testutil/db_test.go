package testutil

import (
	"strings"
	"testing"
)

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TestCreate", "stratapage_test_TestCreate"},
		{"TestErrors/unknown session", "stratapage_test_TestErrors_unknown_session"},
	}
	for _, tt := range tests {
		if got := DatabaseName(tt.in); got != tt.want {
			t.Errorf("DatabaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := DatabaseName("Test" + strings.Repeat("x", 100))
	if len(long) > maxDBName {
		t.Errorf("len = %d, want <= %d", len(long), maxDBName)
	}
}
