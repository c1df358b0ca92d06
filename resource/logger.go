package resource

import (
	"strings"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// restyLogger routes resty's own diagnostics through zap.
type restyLogger struct {
	s *zap.SugaredLogger
}

var _ resty.Logger = restyLogger{}

func newRestyLogger(logger *zap.Logger) restyLogger {
	return restyLogger{s: logger.Named("resty").Sugar()}
}

func (l restyLogger) Errorf(format string, v ...interface{}) {
	l.s.Errorf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Warnf(format string, v ...interface{}) {
	l.s.Warnf(strings.TrimSpace(format), v...)
}

func (l restyLogger) Debugf(format string, v ...interface{}) {
	l.s.Debugf(strings.TrimSpace(format), v...)
}
