// Package logger builds the process-wide structured JSON logger. Phone
// numbers and email addresses are masked before they reach the output.
package logger

import (
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
)

// New returns a JSON logger at the named level ("debug", "info", "warn", "error").
func New(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(level),
		ReplaceAttr: redactAttr,
	}))
}

// Init builds the logger and installs it as the slog default.
func Init(level string) *slog.Logger {
	l := New(level, os.Stdout)
	slog.SetDefault(l)
	return l
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9 ]{7,}[0-9]`)
)

func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	key := strings.ToLower(a.Key)
	val := a.Value.String()
	switch {
	case strings.Contains(key, "email"):
		return slog.String(a.Key, RedactEmail(val))
	case strings.Contains(key, "phone") || key == "to" || key == "destination":
		if strings.Contains(val, "@") {
			return slog.String(a.Key, RedactEmail(val))
		}
		return slog.String(a.Key, RedactPhone(val))
	}
	val = emailPattern.ReplaceAllStringFunc(val, RedactEmail)
	val = phonePattern.ReplaceAllStringFunc(val, RedactPhone)
	return slog.String(a.Key, val)
}

// RedactEmail masks the local part: "sara.k@example.com" -> "sa***@example.com".
func RedactEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "***@***"
	}
	if len(parts[0]) > 2 {
		return parts[0][:2] + "***@" + parts[1]
	}
	return "***@" + parts[1]
}

// RedactPhone keeps the last three digits: "+971501234567" -> "***567".
func RedactPhone(phone string) string {
	digits := make([]byte, 0, len(phone))
	for i := 0; i < len(phone); i++ {
		if phone[i] >= '0' && phone[i] <= '9' {
			digits = append(digits, phone[i])
		}
	}
	if len(digits) <= 3 {
		return "***"
	}
	return "***" + string(digits[len(digits)-3:])
}
