package utils

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
)

func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a command line level name to a LogLevel. Unknown names fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return TRACE
	case "debug":
		return DEBUG
	case "info":
		return INFO
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "critical":
		return CRITICAL
	default:
		return INFO
	}
}

// sink is shared by a logger and all of its named children.
type sink struct {
	mu       sync.Mutex
	minLevel LogLevel
	file     *os.File
	out      io.Writer
}

type Logger struct {
	sink   *sink
	prefix string
}

func NewFileLogger(filePath string, minLevel LogLevel, alsoStdout bool) (*Logger, error) {
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	s := &sink{minLevel: minLevel, file: f}
	if alsoStdout {
		s.out = os.Stdout
	}
	return &Logger{sink: s}, nil
}

// NewLogger writes to w only. A nil w discards everything, which is what tests want.
func NewLogger(w io.Writer, minLevel LogLevel) *Logger {
	if w == nil {
		w = io.Discard
	}
	return &Logger{sink: &sink{minLevel: minLevel, out: w}}
}

// Named returns a child logger whose lines are tagged with the component name.
func (l *Logger) Named(component string) *Logger {
	prefix := component
	if l.prefix != "" {
		prefix = l.prefix + "." + component
	}
	return &Logger{sink: l.sink, prefix: prefix}
}

func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file != nil {
		err := l.sink.file.Close()
		l.sink.file = nil
		return err
	}
	return nil
}

func (l *Logger) SetMinLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.minLevel = level
}

func (l *Logger) Enabled(level LogLevel) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= l.sink.minLevel
}

func (l *Logger) log(level LogLevel, msg string, args ...any) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if level < l.sink.minLevel {
		return
	}

	ts := time.Now().Format(time.RFC3339Nano)
	body := fmt.Sprintf(msg, args...)
	var line string
	if l.prefix != "" {
		line = fmt.Sprintf("%s [%s] %s: %s\n", ts, level.String(), l.prefix, body)
	} else {
		line = fmt.Sprintf("%s [%s] %s\n", ts, level.String(), body)
	}

	if l.sink.file != nil {
		_, _ = l.sink.file.WriteString(line)
		_ = l.sink.file.Sync()
	}
	if l.sink.out != nil {
		_, _ = io.WriteString(l.sink.out, line)
	}
}

func (l *Logger) Trace(msg string, args ...any)    { l.log(TRACE, msg, args...) }
func (l *Logger) Debug(msg string, args ...any)    { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...any)     { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)     { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...any)    { l.log(ERROR, msg, args...) }
func (l *Logger) Critical(msg string, args ...any) { l.log(CRITICAL, msg, args...) }
