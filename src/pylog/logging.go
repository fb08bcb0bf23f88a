// Package pylog contains the singleton logger used across the interpreter.
// It deliberately has little else since it's a dependency everywhere.
package pylog

import (
	"os"

	"gopkg.in/op/go-logging.v1"
)

// Log is the singleton logger instance.
// We never alter individual levels and don't log the module name, so there
// is no need to have more than one, and it helps avoid race conditions.
var Log = logging.MustGetLogger("pysandbox")

// Level is a re-export of the library type.
type Level = logging.Level

// Re-exports of various log levels.
const (
	CRITICAL = logging.CRITICAL
	ERROR    = logging.ERROR
	WARNING  = logging.WARNING
	NOTICE   = logging.NOTICE
	INFO     = logging.INFO
	DEBUG    = logging.DEBUG
)

// InitLogging sets the process-wide verbosity, writing to stderr with a
// timestamp/level/message format.
func InitLogging(verbosity Level) {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(
		"%{time:15:04:05.000} %{level:7s}: %{message}"))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(verbosity, "")
	logging.SetBackend(leveled)
}
