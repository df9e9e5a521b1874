package events

import (
	"github.com/carlosm3011/rpki-validator/internal/model"
	"github.com/carlosm3011/rpki-validator/internal/rlog"
)

// LoggerListener logs every fetch lifecycle event at Debug (success)
// or Warn (failure), the way the teacher logs around MainRsync's
// per-repository fetch loop.
type LoggerListener struct {
	Log rlog.Logger
}

// NewLoggerListener builds a LoggerListener writing through log.
func NewLoggerListener(log rlog.Logger) *LoggerListener {
	return &LoggerListener{Log: log}
}

func (l *LoggerListener) AfterFetchSuccess(uri string, obj model.RepositoryObject, result *model.ValidationResult) {
	l.Log.Debugf("fetched %s", uri)
}

func (l *LoggerListener) AfterFetchFailure(uri string, result *model.ValidationResult) {
	for _, c := range result.ChecksAt(uri) {
		if c.Status == model.Failed {
			l.Log.Warnf("validation failed for %s: %s", uri, c.Key)
		}
	}
}

func (l *LoggerListener) AfterPrefetchSuccess(uri string, result *model.ValidationResult) {
	l.Log.Debugf("prefetched %s", uri)
}

func (l *LoggerListener) AfterPrefetchFailure(uri string, result *model.ValidationResult) {
	l.Log.Warnf("prefetch failed for %s", uri)
}
