package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorWhite  = "\033[37m"
	ColorGray   = "\033[90m"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

const levelCount = int(ERROR) + 1

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) color() string {
	switch l {
	case DEBUG:
		return ColorGray
	case INFO:
		return ColorBlue
	case WARN:
		return ColorYellow
	case ERROR:
		return ColorRed
	default:
		return ColorWhite
	}
}

// ColorMode controls whether log lines carry ANSI colour codes.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

// ColoredLogger fans each level out to its own set of writers. Lines from
// concurrent workers are written whole, one at a time.
type ColoredLogger struct {
	mu      sync.RWMutex
	verbose bool
	color   bool
	writers [levelCount][]io.Writer

	writeMu sync.Mutex
}

var globalLogger = newColoredLogger()

// stdout is reserved for the manifest, so every level starts on stderr.
func newColoredLogger() *ColoredLogger {
	cl := &ColoredLogger{color: stderrIsTerminal()}
	for level := range cl.writers {
		cl.writers[level] = []io.Writer{os.Stderr}
	}
	return cl
}

func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func SetVerbose(verbose bool) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.verbose = verbose
}

func IsVerbose() bool {
	globalLogger.mu.RLock()
	defer globalLogger.mu.RUnlock()
	return globalLogger.verbose
}

func SetColorMode(mode ColorMode) {
	color := stderrIsTerminal()
	switch mode {
	case ColorAlways:
		color = true
	case ColorNever:
		color = false
	}

	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.color = color
}

// SetWriter replaces every writer of level.
func SetWriter(level LogLevel, writer io.Writer) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.writers[level] = []io.Writer{writer}
}

func SetWriterForAll(writer io.Writer) {
	for level := DEBUG; level <= ERROR; level++ {
		SetWriter(level, writer)
	}
}

// AddWriter tees level into writer as well, as --logfile does.
func AddWriter(level LogLevel, writer io.Writer) {
	globalLogger.mu.Lock()
	defer globalLogger.mu.Unlock()
	globalLogger.writers[level] = append(globalLogger.writers[level], writer)
}

func AddWriterForAll(writer io.Writer) {
	for level := DEBUG; level <= ERROR; level++ {
		AddWriter(level, writer)
	}
}

func formatMessage(level LogLevel, message string, color bool) string {
	timestamp := time.Now().Format("06-01-02 15:04:05")

	if !color {
		return fmt.Sprintf("[%s] %-5s %s\n", timestamp, level, message)
	}

	return fmt.Sprintf(
		"%s[%s]%s %s%-5s%s %s%s\n",
		ColorGray, timestamp, ColorReset,
		level.color(), level, ColorReset,
		message, ColorReset,
	)
}

func (cl *ColoredLogger) log(level LogLevel, format string, args ...interface{}) {
	cl.mu.RLock()
	if level == DEBUG && !cl.verbose {
		cl.mu.RUnlock()
		return
	}
	writers := cl.writers[level]
	color := cl.color
	cl.mu.RUnlock()

	line := []byte(formatMessage(level, fmt.Sprintf(format, args...), color))

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	for _, w := range writers {
		_, _ = w.Write(line)
	}
}

func Debug(format string, args ...interface{}) {
	globalLogger.log(DEBUG, format, args...)
}

func Info(format string, args ...interface{}) {
	globalLogger.log(INFO, format, args...)
}

func Warn(format string, args ...interface{}) {
	globalLogger.log(WARN, format, args...)
}

func Error(format string, args ...interface{}) {
	globalLogger.log(ERROR, format, args...)
}
