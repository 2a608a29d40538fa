package bpfloader

import "github.com/sirupsen/logrus"

// Logger is the narrow logging surface the loader needs. *logrus.Logger
// satisfies it directly; embedding processes that route logs elsewhere
// (a platform log daemon, a file) only need to provide this interface, not
// a concrete logrus instance.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DefaultLogger returns logrus's standard logger.
func DefaultLogger() Logger {
	return logrus.StandardLogger()
}
