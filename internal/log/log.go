package log

import (
	"io"
	"log"
	"strings"
	"sync/atomic"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// LevelFromString parses a level name case-insensitively. Unknown names map to INFO.
func LevelFromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "NONE", "OFF":
		return LevelNone
	default:
		return LevelInfo
	}
}

// Logger is a leveled wrapper around the standard library logger.
// A nil *Logger is valid and discards everything. The level may be changed
// while other goroutines log.
type Logger struct {
	logger *log.Logger
	level  atomic.Int32
}

func New(out io.Writer, level Level) *Logger {
	l := &Logger{logger: log.New(out, "", log.LstdFlags|log.Lmicroseconds)}
	l.level.Store(int32(level))
	return l
}

// Discard returns a logger that drops all output.
func Discard() *Logger {
	return New(io.Discard, LevelNone)
}

func (l *Logger) enabled(level Level) bool {
	return l != nil && l.logger != nil && l.Level() <= level
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.logger.Printf("DEBUG: "+format, v...)
	}
}

func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.logger.Printf("INFO: "+format, v...)
	}
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.logger.Printf("WARN: "+format, v...)
	}
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	if l.enabled(LevelError) {
		l.logger.Printf("ERROR: "+format, v...)
	}
}

func (l *Logger) SetLevel(level Level) {
	if l != nil {
		l.level.Store(int32(level))
	}
}

func (l *Logger) Level() Level {
	if l == nil {
		return LevelNone
	}
	return Level(l.level.Load())
}
