package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerInitialization(t *testing.T) {
	assert.NotNil(t, User, "User logger should not be nil after init")
	assert.NotNil(t, Op, "Op logger should not be nil after init")
}

func TestUnifiedLoggerInitialization(t *testing.T) {
	ul := GetLogger()
	require.NotNil(t, ul)
	assert.Same(t, ul, GetLogger())
}

func TestLoggerSetup(t *testing.T) {
	tests := []struct {
		name     string
		verbose  bool
		jsonLogs bool
		quiet    bool
		level    logrus.Level
	}{
		{"Default", false, false, false, logrus.InfoLevel},
		{"Verbose", true, false, false, logrus.DebugLevel},
		{"Quiet", false, false, true, logrus.ErrorLevel},
		{"JSON", false, true, false, logrus.InfoLevel},
		{"Verbose JSON", true, true, false, logrus.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Setup(tt.verbose, tt.jsonLogs, tt.quiet)

			assert.NotNil(t, User)
			assert.NotNil(t, Op)
			assert.Equal(t, tt.level, GetLogger().GetInternalLogger().GetLevel())
		})
	}
}

func TestLoggerSetup_EnvOverride(t *testing.T) {
	t.Setenv("XENOPIPE_LOG_MODE", "quiet")
	Setup(true, false, false)
	assert.Equal(t, logrus.ErrorLevel, GetLogger().GetInternalLogger().GetLevel())

	t.Setenv("XENOPIPE_LOG_MODE", "")
	Setup(false, false, false)
}

func TestUserLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	testLogger := logrus.New()
	testLogger.SetOutput(&buf)
	testLogger.SetLevel(logrus.InfoLevel)

	userLogger := &UserLogger{logger: testLogger}

	userLogger.Info("test message")
	assert.Contains(t, buf.String(), "test message")

	buf.Reset()
	userLogger.Retryf("retrying %s", "align")
	assert.Contains(t, buf.String(), "retrying align")
	assert.Contains(t, buf.String(), "log_type=user")
}

func TestOpLoggerOutput(t *testing.T) {
	var buf bytes.Buffer

	testLogger := logrus.New()
	testLogger.SetOutput(&buf)
	testLogger.SetLevel(logrus.InfoLevel)

	opLogger := &OpLogger{logger: testLogger}

	opLogger.Info("operational message")
	assert.Contains(t, buf.String(), "operational message")

	buf.Reset()
	opLogger.WithFields(map[string]interface{}{
		"task":    "sort_by_name",
		"attempt": 2,
	}).Info("dispatching task")

	output := buf.String()
	assert.Contains(t, output, "dispatching task")
	assert.Contains(t, output, "task=sort_by_name")
}

func TestOutputRouterHook(t *testing.T) {
	var userBuf, opBuf bytes.Buffer

	hook := NewOutputRouterHook()
	hook.UserWriter = &userBuf
	hook.OpWriter = &opBuf

	testLogger := logrus.New()
	testLogger.SetOutput(&bytes.Buffer{})
	testLogger.AddHook(hook)

	(&UserLogger{logger: testLogger}).Success("run finished")
	(&OpLogger{logger: testLogger}).WithFields(map[string]interface{}{"task": "index_bam"}).Warn("slow task")

	assert.Equal(t, "✅ run finished\n", userBuf.String())
	assert.Contains(t, opBuf.String(), "WARNING")
	assert.True(t, strings.HasSuffix(opBuf.String(), "slow task task=index_bam\n"), opBuf.String())
	assert.NotContains(t, opBuf.String(), "log_type")
}

func TestCLIFormatter_SortsFields(t *testing.T) {
	f := &CLIFormatter{DisableTimestamp: true, DisableColors: true}
	entry := &logrus.Entry{
		Message: "msg",
		Level:   logrus.InfoLevel,
		Time:    time.Now(),
		Data:    logrus.Fields{"b": 2, "a": 1, "log_type": "op"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "INFO: msg a=1 b=2\n", string(out))
}

func TestCLIFormatter_MessageOnly(t *testing.T) {
	f := &CLIFormatter{DisableTimestamp: true, DisableLevel: true}
	entry := &logrus.Entry{
		Message: "⏭️ flagstat skipped",
		Level:   logrus.WarnLevel,
		Data:    logrus.Fields{"task": "flagstat"},
	}

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "⏭️ flagstat skipped\n", string(out))
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, logrus.ErrorLevel, levelFor(true, true))
	assert.Equal(t, logrus.DebugLevel, levelFor(true, false))
	assert.Equal(t, logrus.InfoLevel, levelFor(false, false))
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("XENOPIPE_LOG_MODE", "debug")
	t.Setenv("XENOPIPE_LOG_FORMAT", "JSON")
	verbose, jsonLogs, quiet := applyEnv(false, false, true)
	assert.True(t, verbose)
	assert.True(t, jsonLogs)
	assert.False(t, quiet)
}

func TestLogTypeRouting(t *testing.T) {
	captureHook := &testHook{}

	ul := GetLogger()
	ul.GetInternalLogger().AddHook(captureHook)

	User.Info("user message")
	require.NotEmpty(t, captureHook.entries)
	last := captureHook.entries[len(captureHook.entries)-1]
	assert.Equal(t, string(UserLog), last.Data["log_type"])

	Op.Info("op message")
	last = captureHook.entries[len(captureHook.entries)-1]
	assert.Equal(t, string(OpLog), last.Data["log_type"])
}

// testHook is a simple hook for capturing log entries in tests
type testHook struct {
	entries []*logrus.Entry
}

func (h *testHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *testHook) Fire(entry *logrus.Entry) error {
	h.entries = append(h.entries, entry)
	return nil
}
