package monitoring

import "log"

// Logf is the process-wide diagnostic logger for the driver. It defaults to
// log.Printf; SetLogger redirects or mutes it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. A nil argument installs a no-op
// logger, which tests use to keep output quiet.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Prefixed returns a logger that prepends the given component tag so
// interleaved session logs stay attributable.
func Prefixed(tag string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf("["+tag+"] "+format, v...)
	}
}
