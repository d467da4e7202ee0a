// clog is the process-wide leveled diagnostic sink. It is configured once,
// before any printfun is parsed, and never reconfigured while a module is
// being rewritten.
package clog

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
)

type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelAll
)

var levelNames = map[string]Level{
	"quiet":   LevelNone,
	"quite":   LevelNone,
	"no":      LevelNone,
	"none":    LevelNone,
	"off":     LevelNone,
	"error":   LevelError,
	"err":     LevelError,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"info":    LevelInfo,
	"debug":   LevelDebug,
	"all":     LevelAll,
}

var (
	level  = LevelWarn
	logger = log.New(os.Stderr, "", 0)
)

// ParseLevel maps a level name to its Level, ignoring case.
func ParseLevel(name string) (Level, error) {
	l, ok := levelNames[strings.ToLower(name)]
	if !ok {
		return LevelNone, fmt.Errorf("no such log level: %q", name)
	}
	return l, nil
}

func SetLevel(name string) error {
	l, err := ParseLevel(name)
	if err != nil {
		return err
	}
	level = l
	return nil
}

func CurrentLevel() Level {
	return level
}

// Enabled reports whether messages at l are written.
func Enabled(l Level) bool {
	return l != LevelNone && level >= l
}

func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func logf(l Level, format string, args ...any) {
	if !Enabled(l) {
		return
	}
	logger.Printf(format, args...)
}

func Errorf(format string, args ...any) { logf(LevelError, format, args...) }
func Warnf(format string, args ...any)  { logf(LevelWarn, format, args...) }
func Infof(format string, args ...any)  { logf(LevelInfo, format, args...) }
func Debugf(format string, args ...any) { logf(LevelDebug, format, args...) }
