package session

import (
	"fmt"
	"log"
)

// Log levels. The session logs handshake completion, the first latched
// fatal error, and shutdown completion, all at LevelInfo. Renegotiation is
// absorbed inside crypto/tls and is not logged, and the shuttle itself logs
// nothing at LevelDebug or LevelTrace.
const (
	LevelOff = iota
	LevelError
	LevelInfo
	LevelDebug
	LevelTrace
)

// Logger logs session lifecycle events.
type Logger interface {
	Log(level int, format string, values ...interface{})
}

// LeveledLogger returns a Logger that writes to the standard library log
// package, filtering out anything above level.
func LeveledLogger(level int) Logger {
	return leveledLogger(level)
}

type leveledLogger int

func (l leveledLogger) Log(level int, format string, values ...interface{}) {
	if level <= int(l) {
		msg := fmt.Sprintf(format, values...)
		log.Output(2, msg)
	}
}

type nopLogger struct{}

func (nopLogger) Log(level int, format string, values ...interface{}) {}
