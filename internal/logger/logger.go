// Package logger provides process-wide leveled logging for module lifecycle
// messages. Long-lived managers receive an hclog.Logger instead; this package
// covers the places where threading a logger through would be noise.
package logger

import (
	"log"
	"os"
	"strings"
)

var debugEnabled = strings.EqualFold(os.Getenv("AUDIORA_LOG_LEVEL"), "debug")

// Info logs informational messages
func Info(format string, args ...interface{}) {
	log.Printf("INFO: "+format, args...)
}

// Warn logs warning messages
func Warn(format string, args ...interface{}) {
	log.Printf("WARN: "+format, args...)
}

// Error logs error messages
func Error(format string, args ...interface{}) {
	log.Printf("ERROR: "+format, args...)
}

// Debug logs debug messages when AUDIORA_LOG_LEVEL=debug
func Debug(format string, args ...interface{}) {
	if debugEnabled {
		log.Printf("DEBUG: "+format, args...)
	}
}
