package session

// DefaultChatLogCapacity is the number of lines a chat log keeps.
const DefaultChatLogCapacity = 200

// ChatLog is an append-only list of display lines that keeps only the most
// recent cap entries.
type ChatLog struct {
	lines []string
	cap   int
	total uint64
}

// NewChatLog creates an empty log. A non-positive capacity uses the default.
func NewChatLog(capacity int) *ChatLog {
	if capacity <= 0 {
		capacity = DefaultChatLogCapacity
	}
	return &ChatLog{cap: capacity}
}

// Append adds a line, dropping the oldest lines beyond capacity.
func (l *ChatLog) Append(line string) {
	l.lines = append(l.lines, line)
	l.total++
	if over := len(l.lines) - l.cap; over > 0 {
		n := copy(l.lines, l.lines[over:])
		clear(l.lines[n:])
		l.lines = l.lines[:n]
	}
}

// Lines returns a copy of the retained lines, oldest first.
func (l *ChatLog) Lines() []string {
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *ChatLog) Len() int { return len(l.lines) }

// Total is the number of lines ever appended, including evicted ones.
func (l *ChatLog) Total() uint64 { return l.total }

// Since returns the retained lines appended after the first mark lines.
// Lines already evicted are skipped.
func (l *ChatLog) Since(mark uint64) []string {
	if mark >= l.total {
		return nil
	}
	n := l.total - mark
	if n > uint64(len(l.lines)) {
		n = uint64(len(l.lines))
	}
	out := make([]string, n)
	copy(out, l.lines[uint64(len(l.lines))-n:])
	return out
}
