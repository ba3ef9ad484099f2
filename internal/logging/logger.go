// Package logging provides a small leveled logger that writes only to
// stderr. Stdout is reserved for the front-end response stream and the
// worker wire protocol, so nothing in the kernel may log there.
package logging

import (
	"io"
	"log"
	"os"
)

type Logger struct {
	debugEnabled bool
	infoLogger   *log.Logger
	debugLogger  *log.Logger
}

var global *Logger

// Initialize sets up the package-level logger. Safe to call more than
// once (e.g. when debug mode is toggled by a config reload).
func Initialize(debugMode bool) {
	var output io.Writer = os.Stderr
	global = &Logger{
		debugEnabled: debugMode,
		infoLogger:   log.New(output, "", log.LstdFlags),
		debugLogger:  log.New(output, "", log.LstdFlags),
	}
}

func ensure() {
	if global == nil {
		Initialize(false)
	}
}

func Info(format string, args ...interface{}) {
	ensure()
	global.infoLogger.Printf(format, args...)
}

func Debug(format string, args ...interface{}) {
	ensure()
	if global.debugEnabled {
		global.debugLogger.Printf("DEBUG: "+format, args...)
	}
}

func Error(format string, args ...interface{}) {
	ensure()
	global.infoLogger.Printf("ERROR: "+format, args...)
}

func IsDebugEnabled() bool {
	ensure()
	return global.debugEnabled
}
