package rabbitmq

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-resty/resty/v2"
)

// restyLogger funnels resty's own diagnostics into our logr sink.
//
type restyLogger struct {
	log logr.Logger
}

var _ resty.Logger = (*restyLogger)(nil)

func (l *restyLogger) Errorf(format string, v ...interface{}) {
	l.log.Error(fmt.Errorf(format, v...), "resty")
}

func (l *restyLogger) Warnf(format string, v ...interface{}) {
	l.log.V(1).Info(fmt.Sprintf(format, v...), "source", "resty")
}

func (l *restyLogger) Debugf(format string, v ...interface{}) {
	l.log.V(2).Info(fmt.Sprintf(format, v...), "source", "resty")
}
