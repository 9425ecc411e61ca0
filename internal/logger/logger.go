package logger

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the underlying zap logger with engine-aware helpers.
type Logger struct {
	*zap.SugaredLogger
}

// Config represents logger configuration
type Config struct {
	Level  string
	Format string // "json" or "console"
}

// New builds a logger from config. Unknown levels fall back to info.
func New(cfg Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = zapcore.InfoLevel
		}
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	base, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: base.Sugar()}, nil
}

// NewNop returns a logger that discards everything. Used in tests and
// as the default when a component is handed no logger.
func NewNop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

// WithFields returns a logger with the given fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{SugaredLogger: l.SugaredLogger.With(args...)}
}

// LogOptimization logs the outcome of one optimization run.
func (l *Logger) LogOptimization(runID string, assetCount int, tolerance string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"run_id":      runID,
		"asset_count": assetCount,
		"tolerance":   tolerance,
		"duration_ms": duration.Milliseconds(),
	}

	if err != nil {
		fields["error"] = err.Error()
		l.WithFields(fields).Error("Optimization run failed")
	} else {
		l.WithFields(fields).Info("Optimization run completed")
	}
}

// LogRequest logs a handled HTTP request.
func (l *Logger) LogRequest(method, path string, status int, duration time.Duration) {
	l.WithFields(map[string]interface{}{
		"method":      method,
		"path":        path,
		"status":      status,
		"duration_ms": duration.Milliseconds(),
	}).Info("Request handled")
}
