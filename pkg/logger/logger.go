package logger

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level represents the severity of a log message
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	}
	return "unknown"
}

// Colors for the parts of a log line
var (
	timeColor   = color.New(color.FgHiBlack)
	prefixColor = color.New(color.FgCyan)
	fieldColor  = color.New(color.FgHiBlack)
	levelColors = map[Level]*color.Color{
		DebugLevel: color.New(color.FgHiBlack),
		InfoLevel:  color.New(color.FgGreen),
		WarnLevel:  color.New(color.FgYellow),
		ErrorLevel: color.New(color.FgRed),
		FatalLevel: color.New(color.FgRed, color.Bold),
	}
)

// Logger is the main logger interface
type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Info(args ...interface{})
	Infof(format string, args ...interface{})
	Warn(args ...interface{})
	Warnf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithPrefix(prefix string) Logger
}

// output is shared by a logger and the loggers derived from it, so level
// and color changes apply to all of them
type output struct {
	mu       sync.Mutex
	level    Level
	writer   io.Writer
	noColor  bool
	showTime bool
	exit     func(int)
}

// logger implements the Logger interface
type logger struct {
	out    *output
	fields map[string]interface{}
	prefix string
}

// Default logger instance
var defaultLogger = New()

// Config holds logger configuration
type Config struct {
	Level    Level
	Writer   io.Writer
	NoColor  bool
	ShowTime bool
}

// New creates a new logger with default configuration
func New() Logger {
	return NewWithConfig(Config{
		Level:    InfoLevel,
		Writer:   os.Stdout,
		NoColor:  color.NoColor,
		ShowTime: true,
	})
}

// NewWithConfig creates a new logger with custom configuration
func NewWithConfig(cfg Config) Logger {
	return &logger{
		out: &output{
			level:    cfg.Level,
			writer:   cfg.Writer,
			noColor:  cfg.NoColor,
			showTime: cfg.ShowTime,
			exit:     os.Exit,
		},
		fields: make(map[string]interface{}),
	}
}

func defaultOutput() *output {
	if l, ok := defaultLogger.(*logger); ok {
		return l.out
	}
	return nil
}

// SetLevel sets the global log level
func SetLevel(level Level) {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		o.level = level
		o.mu.Unlock()
	}
}

// GetLevel returns the global log level
func GetLevel() Level {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.level
	}
	return InfoLevel
}

// SetNoColor disables color output
func SetNoColor(noColor bool) {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		o.noColor = noColor
		o.mu.Unlock()
	}
}

// SetOutput redirects the default logger
func SetOutput(w io.Writer) {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		o.writer = w
		o.mu.Unlock()
	}
}

// SetShowTime toggles timestamps on the default logger
func SetShowTime(show bool) {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		o.showTime = show
		o.mu.Unlock()
	}
}

// Writer returns the writer of the default logger
func Writer() io.Writer {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return o.writer
	}
	return os.Stdout
}

// colorEnabled reports whether the default logger writes colors
func colorEnabled() bool {
	if o := defaultOutput(); o != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		return !o.noColor
	}
	return false
}

// Helper methods for the default logger
func Debug(args ...interface{})                       { defaultLogger.Debug(args...) }
func Debugf(format string, args ...interface{})       { defaultLogger.Debugf(format, args...) }
func Info(args ...interface{})                        { defaultLogger.Info(args...) }
func Infof(format string, args ...interface{})        { defaultLogger.Infof(format, args...) }
func Warn(args ...interface{})                        { defaultLogger.Warn(args...) }
func Warnf(format string, args ...interface{})        { defaultLogger.Warnf(format, args...) }
func Error(args ...interface{})                       { defaultLogger.Error(args...) }
func Errorf(format string, args ...interface{})       { defaultLogger.Errorf(format, args...) }
func Fatal(args ...interface{})                       { defaultLogger.Fatal(args...) }
func Fatalf(format string, args ...interface{})       { defaultLogger.Fatalf(format, args...) }
func WithField(key string, value interface{}) Logger  { return defaultLogger.WithField(key, value) }
func WithFields(fields map[string]interface{}) Logger { return defaultLogger.WithFields(fields) }
func WithPrefix(prefix string) Logger                 { return defaultLogger.WithPrefix(prefix) }

// paint applies c unless colors are off
func paint(c *color.Color, noColor bool, s string) string {
	if noColor {
		return s
	}
	return c.Sprint(s)
}

func (l *logger) log(level Level, args ...interface{}) {
	o := l.out
	o.mu.Lock()
	if level < o.level {
		o.mu.Unlock()
		return
	}

	var parts []string
	if o.showTime {
		parts = append(parts, paint(timeColor, o.noColor, time.Now().Format("15:04:05")))
	}
	parts = append(parts, paint(levelColors[level], o.noColor, levelLabel(level)))

	if l.prefix != "" {
		parts = append(parts, paint(prefixColor, o.noColor, "["+l.prefix+"]"))
	}

	// Fields are sorted so lines are stable
	if len(l.fields) > 0 {
		keys := make([]string, 0, len(l.fields))
		for k := range l.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fieldParts := make([]string, len(keys))
		for i, k := range keys {
			fieldParts[i] = fmt.Sprintf("%s=%v", k, l.fields[k])
		}
		parts = append(parts, paint(fieldColor, o.noColor, strings.Join(fieldParts, " ")))
	}

	parts = append(parts, fmt.Sprint(args...))
	_, _ = fmt.Fprintln(o.writer, strings.Join(parts, " "))
	exit := o.exit
	o.mu.Unlock()

	// Exit on fatal (after unlocking mutex)
	if level == FatalLevel {
		exit(1)
	}
}

func (l *logger) logf(level Level, format string, args ...interface{}) {
	l.log(level, fmt.Sprintf(format, args...))
}

func levelLabel(level Level) string {
	switch level {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO "
	case WarnLevel:
		return "WARN "
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger interface implementation

func (l *logger) Debug(args ...interface{})                 { l.log(DebugLevel, args...) }
func (l *logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *logger) Info(args ...interface{})                  { l.log(InfoLevel, args...) }
func (l *logger) Infof(format string, args ...interface{})  { l.logf(InfoLevel, format, args...) }
func (l *logger) Warn(args ...interface{})                  { l.log(WarnLevel, args...) }
func (l *logger) Warnf(format string, args ...interface{})  { l.logf(WarnLevel, format, args...) }
func (l *logger) Error(args ...interface{})                 { l.log(ErrorLevel, args...) }
func (l *logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args...) }
func (l *logger) Fatal(args ...interface{})                 { l.log(FatalLevel, args...) }
func (l *logger) Fatalf(format string, args ...interface{}) { l.logf(FatalLevel, format, args...) }

func (l *logger) derive() *logger {
	fields := make(map[string]interface{}, len(l.fields))
	for k, v := range l.fields {
		fields[k] = v
	}
	return &logger{out: l.out, fields: fields, prefix: l.prefix}
}

func (l *logger) WithField(key string, value interface{}) Logger {
	n := l.derive()
	n.fields[key] = value
	return n
}

func (l *logger) WithFields(fields map[string]interface{}) Logger {
	n := l.derive()
	for k, v := range fields {
		n.fields[k] = v
	}
	return n
}

func (l *logger) WithPrefix(prefix string) Logger {
	n := l.derive()
	n.prefix = prefix
	return n
}

// ParseLevel parses a string log level
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}
