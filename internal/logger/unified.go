package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LogType tags an entry so the router hook can pick its destination
type LogType string

const (
	UserLog LogType = "user"
	OpLog   LogType = "op"
)

// UnifiedLogger owns the single logrus logger behind the User and Op facades
type UnifiedLogger struct {
	mu     sync.RWMutex
	logger *logrus.Logger
}

var (
	unifiedLog *UnifiedLogger
	once       sync.Once
)

// GetLogger returns the process-wide logger, creating it on first use
func GetLogger() *UnifiedLogger {
	once.Do(func() {
		logger := logrus.New()
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&CLIFormatter{
			DisableTimestamp: true,
			DisableLevel:     true,
		})
		unifiedLog = &UnifiedLogger{logger: logger}
	})
	return unifiedLog
}

func (l *UnifiedLogger) GetInternalLogger() *logrus.Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.logger
}
