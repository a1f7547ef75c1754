package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

var (
	User *UserLogger // run progress for people (stdout)
	Op   *OpLogger   // scheduler and backend detail (stderr)
)

func init() {
	base := GetLogger().GetInternalLogger()
	User = &UserLogger{logger: base}
	Op = &OpLogger{logger: base}
}

type UserLogger struct {
	logger *logrus.Logger
}

type OpLogger struct {
	logger *logrus.Logger
}

func (u *UserLogger) entry(emoji string) *logrus.Entry {
	fields := logrus.Fields{"log_type": string(UserLog)}
	if emoji != "" {
		fields["emoji"] = emoji
	}
	return u.logger.WithFields(fields)
}

func (u *UserLogger) Info(msg string) {
	u.entry("").Info(msg)
}

func (u *UserLogger) Infof(format string, args ...interface{}) {
	u.entry("").Infof(format, args...)
}

func (u *UserLogger) Error(msg string) {
	u.entry("❌").Error(msg)
}

func (u *UserLogger) Errorf(format string, args ...interface{}) {
	u.entry("❌").Errorf(format, args...)
}

func (u *UserLogger) Warn(msg string) {
	u.entry("⚠️").Warn(msg)
}

func (u *UserLogger) Warnf(format string, args ...interface{}) {
	u.entry("⚠️").Warnf(format, args...)
}

func (u *UserLogger) Starting(msg string) {
	u.entry("🚀").Info(msg)
}

func (u *UserLogger) Startingf(format string, args ...interface{}) {
	u.entry("🚀").Infof(format, args...)
}

func (u *UserLogger) Success(msg string) {
	u.entry("✅").Info(msg)
}

func (u *UserLogger) Successf(format string, args ...interface{}) {
	u.entry("✅").Infof(format, args...)
}

// Retryf reports a task attempt that will be retried
func (u *UserLogger) Retryf(format string, args ...interface{}) {
	u.entry("🔁").Warnf(format, args...)
}

// Skippedf reports a task that will never be dispatched
func (u *UserLogger) Skippedf(format string, args ...interface{}) {
	u.entry("⏭️").Warnf(format, args...)
}

// Publishf reports a final output copied to its destination
func (u *UserLogger) Publishf(format string, args ...interface{}) {
	u.entry("📦").Infof(format, args...)
}

// Cleanupf reports removal of intermediate artifacts
func (u *UserLogger) Cleanupf(format string, args ...interface{}) {
	u.entry("🧹").Infof(format, args...)
}

func (o *OpLogger) entry() *logrus.Entry {
	return o.logger.WithField("log_type", string(OpLog))
}

func (o *OpLogger) Info(msg string) {
	o.entry().Info(msg)
}

func (o *OpLogger) Infof(format string, args ...interface{}) {
	o.entry().Infof(format, args...)
}

func (o *OpLogger) Error(msg string) {
	o.entry().Error(msg)
}

func (o *OpLogger) Errorf(format string, args ...interface{}) {
	o.entry().Errorf(format, args...)
}

func (o *OpLogger) Warn(msg string) {
	o.entry().Warn(msg)
}

func (o *OpLogger) Warnf(format string, args ...interface{}) {
	o.entry().Warnf(format, args...)
}

func (o *OpLogger) Debug(msg string) {
	o.entry().Debug(msg)
}

func (o *OpLogger) Debugf(format string, args ...interface{}) {
	o.entry().Debugf(format, args...)
}

func (o *OpLogger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["log_type"] = string(OpLog)
	return o.logger.WithFields(fields)
}

// CLIFormatter renders an entry as a single line: optional timestamp and
// level, the message, then its fields sorted by key
type CLIFormatter struct {
	DisableTimestamp bool
	DisableLevel     bool
	DisableColors    bool
}

var levelStyles = map[logrus.Level]lipgloss.Style{
	logrus.ErrorLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	logrus.WarnLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	logrus.InfoLevel:  lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
	logrus.DebugLevel: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
}

// hidden fields steer routing and never reach the output
var hiddenFields = map[string]bool{"log_type": true, "emoji": true}

func (f *CLIFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer

	if !f.DisableTimestamp {
		b.WriteString(entry.Time.Format("2006-01-02 15:04:05 "))
	}
	if !f.DisableLevel {
		b.WriteString(f.levelLabel(entry.Level))
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	if !(f.DisableLevel && f.DisableTimestamp) {
		keys := make([]string, 0, len(entry.Data))
		for k := range entry.Data {
			if !hiddenFields[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, entry.Data[k])
		}
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func (f *CLIFormatter) levelLabel(level logrus.Level) string {
	label := strings.ToUpper(level.String())
	style, ok := levelStyles[level]
	if f.DisableColors || !ok {
		return label
	}
	return style.Render(label)
}

// levelFor maps the CLI verbosity flags onto a logrus level; quiet wins
func levelFor(verbose, quiet bool) logrus.Level {
	switch {
	case quiet:
		return logrus.ErrorLevel
	case verbose:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// applyEnv lets XENOPIPE_LOG_MODE and XENOPIPE_LOG_FORMAT override the flags
func applyEnv(verbose, jsonLogs, quiet bool) (bool, bool, bool) {
	switch strings.ToLower(os.Getenv("XENOPIPE_LOG_MODE")) {
	case "quiet":
		verbose, quiet = false, true
	case "verbose", "debug":
		verbose, quiet = true, false
	}
	switch strings.ToLower(os.Getenv("XENOPIPE_LOG_FORMAT")) {
	case "json":
		jsonLogs = true
	case "text":
		jsonLogs = false
	}
	return verbose, jsonLogs, quiet
}

// Setup reconfigures the shared logger for the CLI. Entries are written only
// through the router hook, so the logger's own output is discarded.
func Setup(verbose bool, jsonLogs bool, quiet bool) {
	verbose, jsonLogs, quiet = applyEnv(verbose, jsonLogs, quiet)

	base := GetLogger().GetInternalLogger()
	base.ReplaceHooks(make(logrus.LevelHooks))
	base.SetLevel(levelFor(verbose, quiet))
	base.SetOutput(io.Discard)

	hook := NewOutputRouterHook()
	colors := isatty.IsTerminal(os.Stderr.Fd())
	switch {
	case jsonLogs:
		base.SetFormatter(&logrus.JSONFormatter{})
		hook.UserFormatter = &logrus.JSONFormatter{}
		hook.OpFormatter = &logrus.JSONFormatter{}
	case verbose:
		base.SetFormatter(&logrus.TextFormatter{})
		hook.OpFormatter = &logrus.TextFormatter{FullTimestamp: true, ForceColors: colors}
	default:
		base.SetFormatter(&logrus.TextFormatter{})
		hook.OpFormatter = &CLIFormatter{DisableTimestamp: true, DisableColors: !colors}
	}
	base.AddHook(hook)

	User = &UserLogger{logger: base}
	Op = &OpLogger{logger: base}
}
