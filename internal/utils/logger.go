// internal/utils/logger.go
package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"sensor-autostart/internal/config"
)

// LoggerManager manages application logging
type LoggerManager struct {
	logger *zap.Logger
	config *config.LoggingConfig
}

// NewLogger creates a new logger instance based on configuration
func NewLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	manager := &LoggerManager{
		config: cfg,
	}

	logger, err := manager.createLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	manager.logger = logger
	return logger, nil
}

// createLogger creates the zap logger with proper configuration
func (lm *LoggerManager) createLogger() (*zap.Logger, error) {
	encoderConfig := lm.getEncoderConfig()

	var encoder zapcore.Encoder
	switch lm.config.Format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console":
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	writeSyncer, err := lm.getWriteSyncer()
	if err != nil {
		return nil, fmt.Errorf("failed to create write syncer: %w", err)
	}

	level, err := lm.getLogLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}

	core := zapcore.NewCore(encoder, writeSyncer, level)
	logger := zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))

	return logger, nil
}

// getEncoderConfig returns encoder configuration based on format
func (lm *LoggerManager) getEncoderConfig() zapcore.EncoderConfig {
	config := zap.NewProductionEncoderConfig()

	config.TimeKey = "timestamp"
	config.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	config.LevelKey = "level"
	config.EncodeLevel = zapcore.LowercaseLevelEncoder
	config.MessageKey = "message"
	config.StacktraceKey = "stacktrace"

	if lm.config.Format != "json" {
		config.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	}

	return config
}

// getWriteSyncer returns write syncer based on output configuration
func (lm *LoggerManager) getWriteSyncer() (zapcore.WriteSyncer, error) {
	switch lm.config.Output {
	case "stdout":
		return zapcore.AddSync(os.Stdout), nil
	case "stderr", "":
		return zapcore.AddSync(os.Stderr), nil
	default:
		// File output with rotation
		logDir := filepath.Dir(lm.config.Output)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		lumber := &lumberjack.Logger{
			Filename:   lm.config.Output,
			MaxSize:    lm.config.MaxSize, // MB
			MaxBackups: lm.config.MaxBackups,
			MaxAge:     lm.config.MaxAge, // days
			Compress:   lm.config.Compress,
		}

		return zapcore.AddSync(lumber), nil
	}
}

// getLogLevel parses and returns log level
func (lm *LoggerManager) getLogLevel() (zapcore.Level, error) {
	switch lm.config.Level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s", lm.config.Level)
	}
}

// RunLogger provides structured logging for one configuration run.
// Every run gets its own run ID so log lines from overlapping runs
// against different ports can be told apart.
type RunLogger struct {
	logger    *zap.Logger
	runID     string
	startTime time.Time
}

// NewRunLogger creates a run-specific logger
func NewRunLogger(baseLogger *zap.Logger) *RunLogger {
	runID := uuid.New().String()
	logger := baseLogger.With(
		zap.String("run_id", runID),
	)

	return &RunLogger{
		logger:    logger,
		runID:     runID,
		startTime: time.Now(),
	}
}

// RunID returns the identifier assigned to this run
func (rl *RunLogger) RunID() string {
	return rl.runID
}

// Logger returns the underlying zap logger with run fields attached
func (rl *RunLogger) Logger() *zap.Logger {
	return rl.logger
}

// Start logs run start
func (rl *RunLogger) Start(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Time("start_time", rl.startTime),
	}, fields...)

	rl.logger.Info("Configuration run started", allFields...)
}

// Step logs completion of a single protocol step
func (rl *RunLogger) Step(step string, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("step", step),
		zap.Duration("elapsed", time.Since(rl.startTime)),
	}, fields...)

	rl.logger.Info("Step completed", allFields...)
}

// Success logs successful run completion
func (rl *RunLogger) Success(fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.Duration("duration", time.Since(rl.startTime)),
		zap.Bool("success", true),
	}, fields...)

	rl.logger.Info("Configuration run completed successfully", allFields...)
}

// Failure logs run failure at a given step
func (rl *RunLogger) Failure(step string, err error, fields ...zap.Field) {
	allFields := append([]zap.Field{
		zap.String("step", step),
		zap.Duration("duration", time.Since(rl.startTime)),
		zap.Bool("success", false),
		zap.Error(err),
	}, fields...)

	rl.logger.Error("Configuration run failed", allFields...)
}

// CloseLogger flushes any buffered log entries
func CloseLogger(logger *zap.Logger) error {
	return logger.Sync()
}
