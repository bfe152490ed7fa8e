// Package dashboard forwards per-epoch scalars to metric backends.
//
// Sinks are best effort: callers log and otherwise ignore their errors.
package dashboard

import (
	"errors"
	"log/slog"
)

// Sink accepts (series, value, step) scalars.
type Sink interface {
	Log(series string, value float64, step int) error
	Close() error
}

// LogSink writes each scalar as a structured log line.
type LogSink struct {
	Logger *slog.Logger
}

// Log implements Sink.
func (s LogSink) Log(series string, value float64, step int) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("scalar", "series", series, "value", value, "step", step)
	return nil
}

// Close implements Sink.
func (LogSink) Close() error { return nil }

// Multi fans every scalar out to all sinks.
type Multi []Sink

// Log implements Sink. Every sink is called even if an earlier one fails.
func (m Multi) Log(series string, value float64, step int) error {
	var errs []error
	for _, s := range m {
		if err := s.Log(series, value, step); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
