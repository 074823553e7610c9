package session

import (
	"fmt"
	"testing"
)

func TestChatLogCapacity(t *testing.T) {
	l := NewChatLog(DefaultChatLogCapacity)
	for i := 0; i < 250; i++ {
		l.Append(fmt.Sprintf("line %d", i))
	}

	lines := l.Lines()
	if len(lines) != 200 {
		t.Fatalf("len = %d, want 200", len(lines))
	}
	for i, line := range lines {
		if want := fmt.Sprintf("line %d", i+50); line != want {
			t.Fatalf("lines[%d] = %q, want %q", i, line, want)
		}
	}
	if l.Total() != 250 {
		t.Fatalf("total = %d, want 250", l.Total())
	}
}

func TestChatLogLinesIsACopy(t *testing.T) {
	l := NewChatLog(3)
	l.Append("a")

	lines := l.Lines()
	lines[0] = "mutated"

	if l.Lines()[0] != "a" {
		t.Fatal("Lines exposed internal storage")
	}
}

func TestChatLogSinceSkipsEvicted(t *testing.T) {
	l := NewChatLog(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		l.Append(s)
	}

	testCases := []struct {
		mark uint64
		want string
	}{
		{0, "[c d e]"},
		{3, "[d e]"},
		{4, "[e]"},
		{5, "[]"},
		{9, "[]"},
	}

	for _, tc := range testCases {
		if got := fmt.Sprint(l.Since(tc.mark)); got != tc.want {
			t.Errorf("Since(%d) = %s, want %s", tc.mark, got, tc.want)
		}
	}
}

func TestChatLogDefaultCapacity(t *testing.T) {
	l := NewChatLog(0)
	for i := 0; i < DefaultChatLogCapacity+1; i++ {
		l.Append("x")
	}
	if l.Len() != DefaultChatLogCapacity {
		t.Fatalf("len = %d, want %d", l.Len(), DefaultChatLogCapacity)
	}
}
