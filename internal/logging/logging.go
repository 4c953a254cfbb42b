package logging

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/echolab-ai/echometer/pkg/latency"
)

var (
	logger *zap.Logger
	once   sync.Once
)

// Init initializes the global logger based on LOG_LEVEL and redirects the
// standard library logger to zap. It's safe to call multiple times.
func Init() *zap.Logger {
	once.Do(func() {
		level := strings.ToLower(os.Getenv("LOG_LEVEL"))
		if level == "debug" {
			l, _ := zap.NewDevelopment()
			logger = l
		} else {
			l, _ := zap.NewProduction()
			logger = l
		}
		// Redirect standard library logs into zap so all logs are unified.
		_ = zap.RedirectStdLog(logger)
	})
	return logger
}

// L returns the initialized logger. Call Init first.
func L() *zap.Logger { return logger }

// engineLogger adapts zap's sugared logger to the engine's Logger interface.
type engineLogger struct {
	s *zap.SugaredLogger
}

// NewEngineLogger wraps a zap logger for use by the latency engine.
func NewEngineLogger(l *zap.Logger) latency.Logger {
	return &engineLogger{s: l.Sugar()}
}

func (e *engineLogger) Debug(msg string, args ...interface{}) { e.s.Debugw(msg, args...) }
func (e *engineLogger) Info(msg string, args ...interface{})  { e.s.Infow(msg, args...) }
func (e *engineLogger) Warn(msg string, args ...interface{})  { e.s.Warnw(msg, args...) }
func (e *engineLogger) Error(msg string, args ...interface{}) { e.s.Errorw(msg, args...) }
