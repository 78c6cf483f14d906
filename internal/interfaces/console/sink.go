package console

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"nexchain/internal/application/port"
)

const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// Sink writes the live line, snapshots and notifications to a terminal.
type Sink struct {
	mu     sync.Mutex
	out    io.Writer
	color  bool
	inLive bool // the cursor sits at the end of a live line
}

func NewSink() *Sink { return NewWriterSink(os.Stdout, true) }

func NewWriterSink(out io.Writer, color bool) *Sink {
	return &Sink{out: out, color: color}
}

func (s *Sink) WriteLive(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, line) // no newline
	s.inLive = true
	return err
}

// 打印快照行后，留一个空行占位；不立刻重画 live，等下一次变化刷新
func (s *Sink) WriteSnapshot(ts time.Time, line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "\n%s %s\n\n", ts.Format("2006-01-02 15:04:05"), line)
	s.inLive = false
	return err
}

func (s *Sink) Notify(level port.Level, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix, col := "[INFO]", ansiCyan
	switch level {
	case port.LevelSuccess:
		prefix, col = "[OK]", ansiGreen
	case port.LevelWarn:
		prefix, col = "[WARN]", ansiYellow
	case port.LevelError:
		prefix, col = "[ERROR]", ansiRed
	}
	if s.color {
		prefix = col + prefix + ansiReset
	}

	lead := ""
	if s.inLive {
		lead = "\n"
	}
	_, err := fmt.Fprintf(s.out, "%s%s %s\n", lead, prefix, msg)
	s.inLive = false
	return err
}

func (s *Sink) NewLine() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprint(s.out, "\n")
	s.inLive = false
	return err
}

var _ port.Sink = (*Sink)(nil)
