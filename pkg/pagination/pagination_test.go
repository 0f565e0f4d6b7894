package pagination

import (
	"testing"
	"time"
)

func TestNormalizeLimit(t *testing.T) {
	cases := map[int]int{0: DefaultLimit, -3: DefaultLimit, 10: 10, 500: MaxLimit}
	for in, want := range cases {
		if got := NormalizeLimit(in); got != want {
			t.Fatalf("NormalizeLimit(%d) = %d, want %d", in, got, want)
		}
	}
	if got := LimitWithBuffer(10); got != 11 {
		t.Fatalf("expected buffer limit 11, got %d", got)
	}
}

func TestCursorEncodeParse(t *testing.T) {
	at := time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)
	parsed, err := ParseCursor(EncodeCursor(Cursor{SortAt: at, ID: 42}))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.SortAt.Equal(at) || parsed.ID != 42 {
		t.Fatalf("unexpected cursor %+v", parsed)
	}
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	if c, err := ParseCursor("  "); c != nil || err != nil {
		t.Fatalf("expected nil cursor for blank input, got %+v %v", c, err)
	}
	for _, bad := range []string{"!!!", "bm9waXBl"} {
		if _, err := ParseCursor(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}
