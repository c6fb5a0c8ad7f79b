package hotreload

import "log"

// Logger is the logging seam every component threads through instead of a
// logging-framework interface -- a plain function value, defaulting to
// stdlib log.Printf, the way the teacher threads a debug bool through
// constructors rather than accepting a logger interface.
type Logger func(format string, args ...any)

func defaultLogger(format string, args ...any) {
	log.Printf(format, args...)
}
