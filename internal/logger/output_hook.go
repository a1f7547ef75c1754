package logger

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// OutputRouterHook sends user entries to UserWriter and everything else to
// OpWriter, each with its own formatter
type OutputRouterHook struct {
	UserFormatter logrus.Formatter
	OpFormatter   logrus.Formatter
	UserWriter    io.Writer
	OpWriter      io.Writer

	mu sync.Mutex
}

func NewOutputRouterHook() *OutputRouterHook {
	return &OutputRouterHook{
		UserFormatter: &CLIFormatter{DisableTimestamp: true, DisableLevel: true},
		OpFormatter:   &CLIFormatter{},
		UserWriter:    os.Stdout,
		OpWriter:      os.Stderr,
	}
}

func (h *OutputRouterHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *OutputRouterHook) Fire(entry *logrus.Entry) error {
	formatter, writer := h.OpFormatter, h.OpWriter
	if t, _ := entry.Data["log_type"].(string); t == string(UserLog) {
		formatter, writer = h.UserFormatter, h.UserWriter
		if emoji, _ := entry.Data["emoji"].(string); emoji != "" {
			entry.Message = emoji + " " + entry.Message
		}
	}

	line, err := formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = writer.Write(line)
	return err
}
