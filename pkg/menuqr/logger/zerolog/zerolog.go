// Package zerolog adapts github.com/rs/zerolog to menuqr.Logger.
package zerolog

import (
	"github.com/rs/zerolog"

	"github.com/mihaimyh/menuqr/pkg/menuqr"
)

// Logger implements menuqr.Logger on top of a zerolog.Logger.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger wraps logger. A "component" field is added when component is not empty.
func NewLogger(logger zerolog.Logger, component string) *Logger {
	if component != "" {
		logger = logger.With().Str("component", component).Logger()
	}
	return &Logger{logger: logger}
}

func (l *Logger) Debug(msg string, fields ...menuqr.Field) {
	l.write(l.logger.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...menuqr.Field) {
	l.write(l.logger.Info(), msg, fields)
}

func (l *Logger) Warn(msg string, fields ...menuqr.Field) {
	l.write(l.logger.Warn(), msg, fields)
}

func (l *Logger) Error(msg string, fields ...menuqr.Field) {
	l.write(l.logger.Error(), msg, fields)
}

func (l *Logger) write(event *zerolog.Event, msg string, fields []menuqr.Field) {
	if event == nil {
		return
	}
	for _, f := range fields {
		switch v := f.Value.(type) {
		case error:
			event = event.AnErr(f.Key, v)
		case string:
			event = event.Str(f.Key, v)
		case bool:
			event = event.Bool(f.Key, v)
		case int64:
			event = event.Int64(f.Key, v)
		default:
			event = event.Interface(f.Key, v)
		}
	}
	event.Msg(msg)
}
