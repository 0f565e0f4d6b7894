package env

import "testing"

func TestGetFallsBackOnBlank(t *testing.T) {
	t.Setenv("GEH_TEST_BLANK", "   ")
	if got := Get("GEH_TEST_BLANK", "json"); got != "json" {
		t.Fatalf("expected fallback, got %q", got)
	}
}

func TestFirstPrefersEarlierKey(t *testing.T) {
	t.Setenv("GEH_TEST_A", "console")
	t.Setenv("GEH_TEST_B", "json")
	if got := First("fallback", "GEH_TEST_MISSING", "GEH_TEST_A", "GEH_TEST_B"); got != "console" {
		t.Fatalf("expected console, got %q", got)
	}
}
