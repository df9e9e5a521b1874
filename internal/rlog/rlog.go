// Package rlog is the logging boundary every other package depends
// on instead of importing logrus directly, so that internal/fetcher,
// internal/walker and internal/scheduler stay testable with a fake
// logger. Production code wires it to logrus (the teacher's logger).
package rlog

import (
	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus's API the pipeline uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Logrus adapts *logrus.Logger to Logger.
type Logrus struct {
	*logrus.Logger
}

// NewLogrus wraps l, or the package-level standard logger if l is nil.
func NewLogrus(l *logrus.Logger) Logrus {
	if l == nil {
		l = logrus.StandardLogger()
	}
	return Logrus{Logger: l}
}
