// Package logging provides structured logging for drydock with automatic
// redaction of sensitive data such as access tokens and token-embedded
// clone URLs. Each invocation can additionally tee its output to a
// timestamped run log file.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	// Default logger instance
	logger *slog.Logger

	// Patterns for detecting sensitive data. The clone-URL pattern runs
	// first so embedded credentials collapse before the keyword patterns
	// see them.
	sensitivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`https://[^/@\s]+@`), // credential-embedded clone URL
		regexp.MustCompile(`(?i)(password|secret|token|passphrase|key|auth)[\s]*[:=][\s]*[^\s]+`),
		regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9\-._~+/]+=*`),
		regexp.MustCompile(`(?i)Basic\s+[A-Za-z0-9+/]+=*`),
		regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{36,}`), // GitHub token
	}
)

func init() {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	// Check for debug mode from environment
	if os.Getenv("DRYDOCK_DEBUG") == "true" {
		opts.Level = slog.LevelDebug
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// SetLogger allows overriding the default logger
func SetLogger(l *slog.Logger) {
	logger = l
}

// GetLogger returns the current logger instance
func GetLogger() *slog.Logger {
	return logger
}

// RunLog is a per-invocation log file. All structured output for a run is
// written both to stdout and to the file. Files are never rotated or
// cleaned automatically.
type RunLog struct {
	Path string
	file *os.File
}

// StartRunLog creates a timestamped log file in dir and reconfigures the
// default logger to write to both stdout and the file. An empty dir means
// the current working directory.
func StartRunLog(dir string) (*RunLog, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("drydock-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log: %w", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if os.Getenv("DRYDOCK_DEBUG") == "true" {
		opts.Level = slog.LevelDebug
	}
	logger = slog.New(slog.NewJSONHandler(io.MultiWriter(os.Stdout, f), opts))

	return &RunLog{Path: path, file: f}, nil
}

// Close flushes and closes the run log file. The default logger keeps
// writing to stdout afterwards.
func (r *RunLog) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return r.file.Close()
}

// SanitizeString removes or masks sensitive data from strings
func SanitizeString(s string) string {
	sanitized := s
	for _, pattern := range sensitivePatterns {
		sanitized = pattern.ReplaceAllStringFunc(sanitized, func(match string) string {
			// Keep the scheme readable for credential-embedded URLs
			if strings.HasPrefix(match, "https://") {
				return "https://[REDACTED]@"
			}
			// Extract the key part before the value
			parts := strings.SplitN(match, ":", 2)
			if len(parts) == 2 {
				return parts[0] + ": [REDACTED]"
			}
			parts = strings.SplitN(match, "=", 2)
			if len(parts) == 2 {
				return parts[0] + "=[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return sanitized
}

// SanitizeMap creates a sanitized copy of a map, redacting sensitive keys
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	sanitized := make(map[string]interface{})
	sensitiveKeys := map[string]bool{
		"password":   true,
		"secret":     true,
		"token":      true,
		"key":        true,
		"auth":       true,
		"credential": true,
		"passphrase": true,
		"api_key":    true,
	}

	for k, v := range m {
		lowerKey := strings.ToLower(k)
		if sensitiveKeys[lowerKey] {
			sanitized[k] = "[REDACTED]"
		} else if strVal, ok := v.(string); ok {
			sanitized[k] = SanitizeString(strVal)
		} else {
			sanitized[k] = v
		}
	}
	return sanitized
}

// Info logs an informational message
func Info(msg string, args ...any) {
	logger.Info(msg, args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	logger.Debug(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	logger.Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	logger.Error(msg, args...)
}

// InfoContext logs with additional context fields
func InfoContext(msg string, contextFields map[string]interface{}, args ...any) {
	sanitized := SanitizeMap(contextFields)
	allArgs := make([]any, 0, len(args)+len(sanitized)*2)
	allArgs = append(allArgs, args...)
	for k, v := range sanitized {
		allArgs = append(allArgs, k, v)
	}
	logger.Info(msg, allArgs...)
}

// ErrorContext logs an error with additional context fields
func ErrorContext(msg string, contextFields map[string]interface{}, args ...any) {
	sanitized := SanitizeMap(contextFields)
	allArgs := make([]any, 0, len(args)+len(sanitized)*2)
	allArgs = append(allArgs, args...)
	for k, v := range sanitized {
		allArgs = append(allArgs, k, v)
	}
	logger.Error(msg, allArgs...)
}
