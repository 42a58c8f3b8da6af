// SPDX-License-Identifier: MIT

// Package log is the levelled logger used on every cold path. It must never
// be called from the audio callback or any other producer path.
//
// Package-level functions log without a component. New returns a Logger
// that tags each line with the subsystem it came from:
//
//	var logger = applog.New("udp")
//	logger.Infof("sending to %s", addr) // [INFO]  udp: sending to ...
package log

import (
	"bytes"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
	LevelFatal: "FATAL",
}

func (l LogLevel) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel converts a case-insensitive level name to a LogLevel. It
// returns LevelInfo and false for unknown names.
func ParseLevel(levelStr string) (LogLevel, bool) {
	name := strings.ToUpper(strings.TrimSpace(levelStr))
	if name == "WARNING" {
		return LevelWarn, true
	}
	for l, n := range levelNames {
		if n == name {
			return LogLevel(l), true
		}
	}
	return LevelInfo, false
}

var currentLevel atomic.Uint32

var (
	outMu  sync.Mutex
	out    io.Writer = os.Stderr
	held   *bytes.Buffer
	logger = stdlog.New(writerFunc(write), "", stdlog.Ldate|stdlog.Ltime|stdlog.Lmicroseconds)
)

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func write(p []byte) (int, error) {
	outMu.Lock()
	defer outMu.Unlock()
	if held != nil {
		return held.Write(p)
	}
	return out.Write(p)
}

func init() {
	SetLevel(LevelInfo)
}

// SetLevel sets the global logging level atomically.
func SetLevel(level LogLevel) {
	currentLevel.Store(uint32(level))
}

// GetLevel gets the current global logging level atomically.
func GetLevel() LogLevel {
	return LogLevel(currentLevel.Load())
}

// SetOutput redirects log output, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = w
	outMu.Unlock()
}

// Hold buffers every line in memory until release is called, then writes
// them out in order. Used while a full-screen terminal UI owns the
// terminal. Calling release more than once is a no-op.
func Hold() (release func()) {
	outMu.Lock()
	held = new(bytes.Buffer)
	outMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			outMu.Lock()
			defer outMu.Unlock()
			if held != nil {
				out.Write(held.Bytes())
				held = nil
			}
		})
	}
}

// Logger tags each line with a component name.
type Logger struct {
	prefix string
}

// New returns a Logger for component.
func New(component string) *Logger {
	return &Logger{prefix: component + ": "}
}

var std = &Logger{}

func (lg *Logger) log(level LogLevel, msg string) {
	// Keep messages aligned: INFO and WARN are one character shorter.
	pad := " "
	if level == LevelInfo || level == LevelWarn {
		pad = "  "
	}
	logger.Printf("[%s]%s%s%s", level, pad, lg.prefix, msg)
}

func (lg *Logger) Debugf(format string, v ...any) { lg.logf(LevelDebug, format, v...) }
func (lg *Logger) Infof(format string, v ...any)  { lg.logf(LevelInfo, format, v...) }
func (lg *Logger) Warnf(format string, v ...any)  { lg.logf(LevelWarn, format, v...) }
func (lg *Logger) Errorf(format string, v ...any) { lg.logf(LevelError, format, v...) }

func (lg *Logger) logf(level LogLevel, format string, v ...any) {
	if level >= GetLevel() {
		lg.log(level, fmt.Sprintf(format, v...))
	}
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...any) { std.logf(LevelDebug, format, v...) }

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...any) { std.logf(LevelInfo, format, v...) }

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...any) { std.logf(LevelWarn, format, v...) }

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...any) { std.logf(LevelError, format, v...) }

// Fatalf logs a formatted fatal message regardless of the level, flushes
// held output and exits the application.
func Fatalf(format string, v ...any) {
	std.log(LevelFatal, fmt.Sprintf(format, v...))
	outMu.Lock()
	if held != nil {
		out.Write(held.Bytes())
		held = nil
	}
	outMu.Unlock()
	os.Exit(1)
}
