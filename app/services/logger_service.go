package services

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"DistroApp/app/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerService owns the application logger: stdout plus one log file per day
type LoggerService struct {
	logDir string
	file   *dailyFileWriter
	logger *zap.Logger
}

// NewLoggerService builds the zap logger. An empty or unusable logDir logs to stdout only.
func NewLoggerService(logDir string, cfg config.LogConfig) *LoggerService {
	level := parseLevel(cfg.Level)

	var consoleEncoder zapcore.Encoder
	if cfg.Environment == "production" {
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.TimeKey = "timestamp"
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		consoleEncoder = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEncoder = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), level),
	}

	s := &LoggerService{logDir: logDir}

	var setupErr error
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0755); err != nil {
			setupErr = fmt.Errorf("could not create logs directory: %w", err)
		} else {
			s.file = &dailyFileWriter{dir: logDir}
			fileCfg := zap.NewProductionEncoderConfig()
			fileCfg.TimeKey = "timestamp"
			fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), s.file, level))
		}
	}

	s.logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).
		With(zap.String("service", config.AppName), zap.String("environment", cfg.Environment))
	zap.ReplaceGlobals(s.logger)

	if setupErr != nil {
		s.logger.Warn("logging to stdout only", zap.Error(setupErr))
	} else {
		s.logger.Info("logger initialized", zap.String("dir", logDir))
	}
	return s
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Logger returns the structured logger handed to other services
func (s *LoggerService) Logger() *zap.Logger {
	return s.logger
}

// LogInfo logs an informational message
func (s *LoggerService) LogInfo(message string, details ...string) {
	s.logger.Info(message, detailFields(details)...)
}

// LogWarning logs a warning message
func (s *LoggerService) LogWarning(message string, details ...string) {
	s.logger.Warn(message, detailFields(details)...)
}

// LogError logs an error message
func (s *LoggerService) LogError(message string, err error, details ...string) {
	fields := detailFields(details)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Error(message, fields...)
}

// LogPanic logs a recovered panic with its stack trace
func (s *LoggerService) LogPanic(recovered any) {
	s.logger.Error("recovered from panic",
		zap.Any("panic", recovered),
		zap.ByteString("stack", debug.Stack()))
}

// RecoverPanic is deferred at the top of goroutines
func (s *LoggerService) RecoverPanic() {
	if r := recover(); r != nil {
		s.LogPanic(r)
	}
}

// LogFrontendError logs errors reported by the UI
func (s *LoggerService) LogFrontendError(message string, stack string, componentInfo string) {
	s.logger.Error(message,
		zap.String("source", "frontend"),
		zap.String("component", componentInfo),
		zap.String("stack", stack))
}

// LogFrontendWarning logs warnings reported by the UI
func (s *LoggerService) LogFrontendWarning(message string, details string) {
	s.logger.Warn(message, zap.String("source", "frontend"), zap.String("details", details))
}

// LogFrontendInfo logs info reported by the UI
func (s *LoggerService) LogFrontendInfo(message string, details string) {
	s.logger.Info(message, zap.String("source", "frontend"), zap.String("details", details))
}

func detailFields(details []string) []zap.Field {
	if len(details) == 0 {
		return nil
	}
	return []zap.Field{zap.String("details", details[0])}
}

// GetLogDirectory returns the directory where logs are stored
func (s *LoggerService) GetLogDirectory() string {
	return s.logDir
}

// GetTodayLogPath returns the path to today's log file
func (s *LoggerService) GetTodayLogPath() string {
	return filepath.Join(s.logDir, logFileName(time.Now()))
}

// CleanOldLogs removes log files older than daysToKeep
func (s *LoggerService) CleanOldLogs(daysToKeep int) error {
	if s.logDir == "" {
		return nil
	}

	files, err := os.ReadDir(s.logDir)
	if err != nil {
		return err
	}

	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".log" {
			continue
		}
		info, err := file.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.logDir, file.Name())
			s.logger.Info("deleting old log file", zap.String("path", path))
			os.Remove(path)
		}
	}
	return nil
}

// Close flushes and closes the log file
func (s *LoggerService) Close() {
	_ = s.logger.Sync()
	if s.file != nil {
		s.file.Close()
	}
}

func logFileName(t time.Time) string {
	return t.Format("2006-01-02") + ".log"
}

// dailyFileWriter appends to <dir>/YYYY-MM-DD.log, switching files when the day changes
type dailyFileWriter struct {
	dir string

	mu   sync.Mutex
	day  string
	file *os.File
}

func (w *dailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.rotate(time.Now()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

func (w *dailyFileWriter) rotate(now time.Time) error {
	today := now.Format("2006-01-02")
	if w.day == today && w.file != nil {
		return nil
	}

	if w.file != nil {
		w.file.Close()
	}

	file, err := os.OpenFile(filepath.Join(w.dir, logFileName(now)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		w.file = nil
		return fmt.Errorf("failed to open log file: %w", err)
	}

	w.file = file
	w.day = today
	return nil
}

func (w *dailyFileWriter) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	return w.file.Sync()
}

func (w *dailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}
