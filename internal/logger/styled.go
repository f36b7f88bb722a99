package logger

import (
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/xmv-solutions/talos-client-go/internal/health"
	"github.com/xmv-solutions/talos-client-go/theme"
)

// StyledLogger wraps slog.Logger with theme-aware formatting helpers keyed
// to this client's domain: endpoints, node targets, and health transitions.
type StyledLogger struct {
	logger *slog.Logger
	theme  *theme.Theme
}

// NewStyledLogger creates a new styled logger with the given theme.
func NewStyledLogger(logger *slog.Logger, t *theme.Theme) *StyledLogger {
	return &StyledLogger{logger: logger, theme: t}
}

// NewWithTheme creates both a regular logger and a styled logger from cfg.
func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	log, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	styled := NewStyledLogger(log, theme.GetTheme(cfg.Theme))
	return log, styled, cleanup, nil
}

func (sl *StyledLogger) Debug(msg string, args ...any) { sl.logger.Debug(msg, args...) }
func (sl *StyledLogger) Info(msg string, args ...any)  { sl.logger.Info(msg, args...) }
func (sl *StyledLogger) Warn(msg string, args ...any)  { sl.logger.Warn(msg, args...) }
func (sl *StyledLogger) Error(msg string, args ...any) { sl.logger.Error(msg, args...) }

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Counts.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Endpoint.Sprint(endpoint))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) WarnWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Endpoint.Sprint(endpoint))
	sl.logger.Warn(styledMsg, args...)
}

func (sl *StyledLogger) ErrorWithEndpoint(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Endpoint.Sprint(endpoint))
	sl.logger.Error(styledMsg, args...)
}

// InfoWithNode logs msg with node (for example a NodeTarget's serialised
// x-talos-node value) highlighted in the theme's Node style.
func (sl *StyledLogger) InfoWithNode(msg string, node string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.Node.Sprint(node))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithHealthCheck(msg string, endpoint string, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, sl.theme.HealthCheck.Sprint(endpoint))
	sl.logger.Info(styledMsg, args...)
}

// InfoHealthStatus logs an endpoint's current health.Status, coloured by
// whether it is Healthy, Unhealthy, or still Unknown.
func (sl *StyledLogger) InfoHealthStatus(msg string, endpoint string, status health.Status, args ...any) {
	var style *pterm.Style
	switch status {
	case health.StatusHealthy:
		style = sl.theme.HealthHealthy
	case health.StatusUnhealthy:
		style = sl.theme.HealthUnhealthy
	default:
		style = sl.theme.HealthUnknown
	}
	styledMsg := fmt.Sprintf("%s %s is %s", msg, sl.theme.Endpoint.Sprint(endpoint), style.Sprint(status.String()))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithHealthStats(msg string, healthy, unhealthy, unknown int, args ...any) {
	allArgs := make([]any, 0, len(args)+6)
	allArgs = append(allArgs, args...)
	allArgs = append(allArgs,
		"healthy", sl.theme.HealthHealthy.Sprint(healthy),
		"unhealthy", sl.theme.HealthUnhealthy.Sprint(unhealthy),
		"unknown", sl.theme.HealthUnknown.Sprint(unknown),
	)
	sl.logger.Info(msg, allArgs...)
}

// GetUnderlying returns the wrapped slog.Logger for callers that need it
// directly (e.g. to pass into a library expecting *slog.Logger).
func (sl *StyledLogger) GetUnderlying() *slog.Logger { return sl.logger }

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{logger: sl.logger.With(args...), theme: sl.theme}
}

func (sl *StyledLogger) WithAttrs(attrs ...slog.Attr) *StyledLogger {
	args := make([]any, 0, len(attrs)*2)
	for _, attr := range attrs {
		args = append(args, attr.Key, attr.Value)
	}
	return sl.With(args...)
}
