package port

import "time"

type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

type Sink interface {
	// Live line: overwrite last line (no newline)
	WriteLive(line string) error
	// Snapshot line: append a historical line with timestamp
	WriteSnapshot(ts time.Time, line string) error
	// Notify shows a transient user-facing message
	Notify(level Level, msg string) error
	// Normal newline (for logs)
	NewLine() error
}
