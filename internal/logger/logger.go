// Package logger provides the structured logging interface used across
// eventorch's processes.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logging interface every eventorch component
// depends on instead of *zap.Logger directly.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	With(fields ...any) Logger
	WithComponent(component string) Logger
	WithError(err error) Logger
	Sync() error
}

// Config controls zap construction.
type Config struct {
	Level       string `env:"LOG_LEVEL"`
	Format      string `env:"LOG_FORMAT"`
	Development bool
}

// SetDefaults fills unset fields with the production defaults.
func (c *Config) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

var logLevels = map[string]zapcore.Level{
	"debug": zapcore.DebugLevel,
	"info":  zapcore.InfoLevel,
	"warn":  zapcore.WarnLevel,
	"error": zapcore.ErrorLevel,
}

type zapLogger struct {
	z *zap.Logger
}

// New builds a zap-backed Logger from Config.
func New(cfg Config) (Logger, error) {
	cfg.SetDefaults()

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Format == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	level, ok := logLevels[strings.ToLower(cfg.Level)]
	if !ok {
		level = zapcore.InfoLevel
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	return &zapLogger{z: zap.New(core, opts...)}, nil
}

func (l *zapLogger) Debug(msg string, fields ...any) { l.z.Sugar().Debugw(msg, fields...) }
func (l *zapLogger) Info(msg string, fields ...any)  { l.z.Sugar().Infow(msg, fields...) }
func (l *zapLogger) Warn(msg string, fields ...any)  { l.z.Sugar().Warnw(msg, fields...) }
func (l *zapLogger) Error(msg string, fields ...any) { l.z.Sugar().Errorw(msg, fields...) }

func (l *zapLogger) With(fields ...any) Logger {
	return &zapLogger{z: l.z.Sugar().With(fields...).Desugar()}
}

func (l *zapLogger) WithComponent(component string) Logger {
	return l.With("component", component)
}

func (l *zapLogger) WithError(err error) Logger {
	return l.With("error", err)
}

func (l *zapLogger) Sync() error {
	return l.z.Sync()
}
