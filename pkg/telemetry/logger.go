package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logger every core package writes through,
// a thin layer over zerolog that standardizes the field names the
// build domain cares about (component, target, job_id, cook_run_id).
type Logger struct {
	zlog   zerolog.Logger
	config LoggingConfig
}

type loggerContextKey struct{}

// NewLogger builds a Logger from cfg. The returned logger has no
// component field yet; subsystems derive their own via
// NewComponentLogger.
func NewLogger(cfg LoggingConfig) (*Logger, error) {
	sink, err := openSink(cfg.Output)
	if err != nil {
		return nil, err
	}
	if cfg.Format == "console" {
		sink = zerolog.ConsoleWriter{Out: sink, TimeFormat: consoleTimeFormat(cfg.TimeFormat)}
	}
	zerolog.TimeFieldFormat = wireTimeFormat(cfg.TimeFormat)

	zctx := zerolog.New(sink).Level(parseLogLevel(cfg.Level)).With().Timestamp()
	if cfg.EnableCaller {
		zctx = zctx.Caller()
	}
	zlog := zctx.Logger()

	if cfg.EnableSampling {
		zlog = zlog.Sample(&zerolog.BurstSampler{
			Burst:       uint32(cfg.SamplingInitial),
			Period:      time.Second,
			NextSampler: &zerolog.BasicSampler{N: uint32(cfg.SamplingThereafter)},
		})
	}
	return &Logger{zlog: zlog, config: cfg}, nil
}

func openSink(output string) (io.Writer, error) {
	switch output {
	case "", "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	return os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

func wireTimeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	}
	return time.RFC3339
}

func consoleTimeFormat(format string) string {
	if format == "unix" {
		return "unix"
	}
	return time.RFC3339
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	}
	return zerolog.InfoLevel
}

// child wraps a derived zerolog.Logger, carrying the config forward.
func (l *Logger) child(zlog zerolog.Logger) *Logger {
	return &Logger{zlog: zlog, config: l.config}
}

// NewComponentLogger derives a logger for one subsystem ("reflect",
// "pylon", "graph", "modinst", "extern", "cook").
func (l *Logger) NewComponentLogger(component string) *Logger {
	return l.child(l.zlog.With().Str("component", component).Logger())
}

// WithContext stores l in ctx for retrieval by FromContext.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, l)
}

// FromContext returns the Logger stored in ctx, or a bare stdout
// logger when none was installed, so library code can always log.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zlog: zerolog.New(os.Stdout).With().Timestamp().Logger()}
}

// WithField derives a logger carrying one extra field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.child(l.zlog.With().Interface(key, value).Logger())
}

// WithFields derives a logger carrying several extra fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zctx := l.zlog.With()
	for k, v := range fields {
		zctx = zctx.Interface(k, v)
	}
	return l.child(zctx.Logger())
}

// WithCookRunID tags entries with the cook run they belong to.
func (l *Logger) WithCookRunID(id string) *Logger { return l.WithField("cook_run_id", id) }

// WithTarget tags entries with the build target being processed.
func (l *Logger) WithTarget(target string) *Logger { return l.WithField("target", target) }

// WithJobID tags entries with a cook job id.
func (l *Logger) WithJobID(id string) *Logger { return l.WithField("job_id", id) }

// WithProvider tags entries with the extern provider being driven.
func (l *Logger) WithProvider(name, version string) *Logger {
	return l.child(l.zlog.With().Str("provider_name", name).Str("provider_version", version).Logger())
}

// WithError attaches err to every entry of the derived logger.
func (l *Logger) WithError(err error) *Logger {
	return l.child(l.zlog.With().Err(err).Logger())
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }
func (l *Logger) Fatal(msg string) { l.zlog.Fatal().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.zlog.Debug().Msgf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.zlog.Info().Msgf(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.zlog.Warn().Msgf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.zlog.Error().Msgf(format, args...) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.zlog.Fatal().Msgf(format, args...) }
