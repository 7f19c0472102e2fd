// Package logx provides leveled logging with environment-driven debug control.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

type Logger struct {
	owner string
}

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// DebugConfig controls debug logging behavior.
type DebugConfig struct {
	Enabled bool
	LogDir  string
	Domains map[string]bool // Which domains to enable debug for (nil = all)
}

// Global debug configuration and output writer. The writer is swappable so
// tests can capture output and the daemon can mirror logs to a file.
var (
	debugConfig = &DebugConfig{
		Enabled: false,
		LogDir:  "",
		Domains: nil,
	}
	debugMutex sync.RWMutex

	logWriter     io.Writer // nil means stderr
	logWriterLock sync.RWMutex
	logFile       *os.File
)

// Initialize debug configuration from environment variables.
func init() { //nolint:gochecknoinits // Required for env var initialization
	initDebugFromEnv()
}

// initDebugFromEnv initializes debug configuration from environment variables.
func initDebugFromEnv() {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	// Check if debug is enabled via DEBUG=1 or DEBUG=true
	if debug := os.Getenv("DEBUG"); debug == "1" || strings.EqualFold(debug, "true") {
		debugConfig.Enabled = true
	}

	// Set log directory from DEBUG_LOG_DIR (overrides the daemon default)
	if debugLogDir := os.Getenv("DEBUG_LOG_DIR"); debugLogDir != "" {
		debugConfig.LogDir = debugLogDir
	}

	// Parse domain filtering from DEBUG_DOMAINS=runner,idle,supervisor
	if domains := os.Getenv("DEBUG_DOMAINS"); domains != "" {
		debugConfig.Domains = make(map[string]bool)
		for _, domain := range strings.Split(domains, ",") {
			debugConfig.Domains[strings.TrimSpace(domain)] = true
		}
	}
}

func NewLogger(owner string) *Logger {
	return &Logger{owner: owner}
}

// SetDebugConfig configures global debug logging settings.
func SetDebugConfig(enabled bool, logDir string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	debugConfig.Enabled = enabled
	if logDir != "" {
		debugConfig.LogDir = logDir
	}
}

// SetDebugDomains configures which domains should have debug logging enabled.
// An empty list enables all domains.
func SetDebugDomains(domains []string) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	if len(domains) == 0 {
		debugConfig.Domains = nil
		return
	}
	debugConfig.Domains = make(map[string]bool)
	for _, domain := range domains {
		debugConfig.Domains[strings.TrimSpace(domain)] = true
	}
}

// IsDebugEnabled returns whether debug logging is enabled.
func IsDebugEnabled() bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()
	return debugConfig.Enabled
}

// IsDebugEnabledForDomain returns whether debug logging is enabled for a
// specific domain (idle, runner, supervisor, config, store).
func IsDebugEnabledForDomain(domain string) bool {
	debugMutex.RLock()
	defer debugMutex.RUnlock()

	if !debugConfig.Enabled {
		return false
	}
	if debugConfig.Domains == nil {
		return true
	}
	return debugConfig.Domains[domain]
}

// InitializeLogFile mirrors all log output into a timestamped file under dir,
// pruning older files so at most keep remain. With tee, output still goes to
// stderr as well. Call CloseLogFile on shutdown.
func InitializeLogFile(dir string, keep int, tee bool) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log dir %s: %w", dir, err)
	}

	pruneLogFiles(dir, keep-1)

	name := fmt.Sprintf("metronome-%s.log", time.Now().UTC().Format("20060102-150405"))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log file %s: %w", name, err)
	}

	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	if logFile != nil {
		logFile.Close()
	}
	logFile = f
	if tee {
		logWriter = io.MultiWriter(os.Stderr, f)
	} else {
		logWriter = f
	}
	return nil
}

// CloseLogFile restores stderr-only output and closes the current log file.
func CloseLogFile() {
	logWriterLock.Lock()
	defer logWriterLock.Unlock()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	logWriter = nil
}

// pruneLogFiles removes the oldest metronome-*.log files in dir so at most
// keep remain. Failures are ignored; pruning is best effort.
func pruneLogFiles(dir string, keep int) {
	if keep < 0 {
		keep = 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, "metronome-*.log"))
	if err != nil || len(matches) <= keep {
		return
	}
	sort.Strings(matches) // timestamped names sort oldest first
	for _, old := range matches[:len(matches)-keep] {
		os.Remove(old)
	}
}

func (l *Logger) log(level Level, format string, args ...any) {
	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	message := fmt.Sprintf(format, args...)
	line := fmt.Sprintf("[%s] [%s] %s: %s", timestamp, l.owner, level, message)

	logWriterLock.RLock()
	w := logWriter
	logWriterLock.RUnlock()
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintln(w, line)
}

func (l *Logger) Debug(format string, args ...any) {
	if !IsDebugEnabled() {
		return
	}
	l.log(LevelDebug, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.log(LevelInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.log(LevelWarn, format, args...)
}

func (l *Logger) Error(format string, args ...any) {
	l.log(LevelError, format, args...)
}

// DebugState logs lifecycle transition information (common pattern in codebase).
func (l *Logger) DebugState(action, state string, extra ...string) {
	extraInfo := ""
	if len(extra) > 0 {
		extraInfo = fmt.Sprintf(" - %s", extra[0])
	}
	l.Debug("State %s: %s%s", action, state, extraInfo)
}

func (l *Logger) GetOwner() string {
	return l.owner
}

func (l *Logger) WithOwner(owner string) *Logger {
	return &Logger{owner: owner}
}

// Debug logs a domain-gated debug message under the domain's name.
//
// Environment variable control:
//
//	DEBUG=1                            # Enable debug for all domains
//	DEBUG=1 DEBUG_DOMAINS=runner       # Enable debug only for the runner domain
//	DEBUG=1 DEBUG_DOMAINS=runner,idle  # Enable debug for multiple domains
func Debug(domain, format string, args ...any) {
	if !IsDebugEnabledForDomain(domain) {
		return
	}
	NewLogger(domain).log(LevelDebug, format, args...)
}

// Global logging functions for convenience.
var defaultLogger = NewLogger("system")

func Debugf(format string, args ...any) {
	defaultLogger.Debug(format, args...)
}

func Infof(format string, args ...any) {
	defaultLogger.Info(format, args...)
}

func Warnf(format string, args ...any) {
	defaultLogger.Warn(format, args...)
}

// Errorf logs and returns the formatted error.
// Use this when you need both logging and error returning:
//
//	err := logx.Errorf("setup failed: %w", err).
func Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	defaultLogger.Error("%s", err.Error())
	return err
}

// Wrap logs msg + ": " + err.Error() and returns fmt.Errorf("%s: %w", msg, err).
// Use this when you need both logging and error wrapping:
//
//	if err != nil { return logx.Wrap(err, "db open") }.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	wrappedErr := fmt.Errorf("%s: %w", msg, err)
	defaultLogger.Error("%s", wrappedErr.Error())
	return wrappedErr
}
