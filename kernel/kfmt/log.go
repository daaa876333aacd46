package kfmt

import "strings"

// Level selects which log messages reach the console.
type Level uint8

// The supported log levels, from least to most verbose.
const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	logLevel = LevelInfo

	levelNames = [...]string{"ERROR", "WARN", "INFO", "DEBUG", "TRACE"}
)

// String returns the upper-case level name.
func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(name string) (Level, bool) {
	for i, levelName := range levelNames {
		if strings.EqualFold(name, levelName) {
			return Level(i), true
		}
	}
	return LevelInfo, false
}

// SetLevel sets the most verbose level that is printed.
func SetLevel(l Level) {
	logLevel = l
}

// Enabled returns true if messages at level l are printed.
func Enabled(l Level) bool {
	return l <= logLevel
}

func logf(l Level, module, format string, args []interface{}) {
	if !Enabled(l) {
		return
	}
	Printf("[%5s][%s] "+format+"\n", append([]interface{}{l, module}, args...)...)
}

// Errorf logs a message at LevelError.
func Errorf(module, format string, args ...interface{}) { logf(LevelError, module, format, args) }

// Warnf logs a message at LevelWarn.
func Warnf(module, format string, args ...interface{}) { logf(LevelWarn, module, format, args) }

// Infof logs a message at LevelInfo.
func Infof(module, format string, args ...interface{}) { logf(LevelInfo, module, format, args) }

// Debugf logs a message at LevelDebug.
func Debugf(module, format string, args ...interface{}) { logf(LevelDebug, module, format, args) }

// Tracef logs a message at LevelTrace.
func Tracef(module, format string, args ...interface{}) { logf(LevelTrace, module, format, args) }
