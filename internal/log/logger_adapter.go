package log

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"firestige.xyz/ethmqtt/internal/config"
)

type logrusAdapter struct {
	entry *logrus.Entry
}

// Init replaces the global logger according to cfg. Stdout is always an
// output; a rotating file is added when enabled.
func Init(cfg config.LogConfig) error {
	l, err := build(cfg, NewMultiWriter().Add(os.Stdout))
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

func build(cfg config.LogConfig, out *MultiWriter) (*logrusAdapter, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeLayout(cfg)})
	case "", "pattern":
		pattern := cfg.Pattern
		if pattern == "" {
			pattern = DefaultPattern
		}
		l.SetFormatter(&formatter{pattern: pattern, time: timeLayout(cfg)})
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be pattern or json)", cfg.Format)
	}
	l.SetLevel(level)
	l.SetReportCaller(cfg.ReportCaller)

	if cfg.Outputs.File.Enabled {
		out.AddFileAppender(cfg.Outputs.File)
	}
	l.SetOutput(out)

	return &logrusAdapter{entry: logrus.NewEntry(l)}, nil
}

func timeLayout(cfg config.LogConfig) string {
	if cfg.TimeLayout == "" {
		return DefaultTimeLayout
	}
	return cfg.TimeLayout
}

// parseLevel accepts the four configurable levels, case-insensitively.
func parseLevel(s string) (logrus.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("invalid log level: %q", s)
	}
}

func (l *logrusAdapter) Print(args ...interface{})                 { l.entry.Print(args...) }
func (l *logrusAdapter) Printf(format string, args ...interface{}) { l.entry.Printf(format, args...) }

func (l *logrusAdapter) Trace(args ...interface{})                 { l.entry.Trace(args...) }
func (l *logrusAdapter) Tracef(format string, args ...interface{}) { l.entry.Tracef(format, args...) }

func (l *logrusAdapter) Debug(args ...interface{})                 { l.entry.Debug(args...) }
func (l *logrusAdapter) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }

func (l *logrusAdapter) Info(args ...interface{})                 { l.entry.Info(args...) }
func (l *logrusAdapter) Infof(format string, args ...interface{}) { l.entry.Infof(format, args...) }

func (l *logrusAdapter) Warn(args ...interface{})                 { l.entry.Warn(args...) }
func (l *logrusAdapter) Warnf(format string, args ...interface{}) { l.entry.Warnf(format, args...) }

func (l *logrusAdapter) Error(args ...interface{})                 { l.entry.Error(args...) }
func (l *logrusAdapter) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

func (l *logrusAdapter) Fatal(args ...interface{})                 { l.entry.Fatal(args...) }
func (l *logrusAdapter) Fatalf(format string, args ...interface{}) { l.entry.Fatalf(format, args...) }

func (l *logrusAdapter) Panic(args ...interface{})                 { l.entry.Panic(args...) }
func (l *logrusAdapter) Panicf(format string, args ...interface{}) { l.entry.Panicf(format, args...) }

func (l *logrusAdapter) WithField(field string, value interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithField(field, value)}
}
func (l *logrusAdapter) WithFields(fields map[string]interface{}) Logger {
	return &logrusAdapter{entry: l.entry.WithFields(fields)}
}
func (l *logrusAdapter) WithError(err error) Logger {
	return &logrusAdapter{entry: l.entry.WithError(err)}
}

func (l *logrusAdapter) IsTraceEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.TraceLevel)
}
func (l *logrusAdapter) IsDebugEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.DebugLevel)
}
func (l *logrusAdapter) IsInfoEnabled() bool {
	return l.entry.Logger.IsLevelEnabled(logrus.InfoLevel)
}
