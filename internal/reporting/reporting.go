package reporting

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
)

var enabled atomic.Bool

// ignoredErrors are logged but never sent: shutdown noise and users who
// blocked the bot.
var ignoredErrors = []string{
	"bot was blocked by the user",
	"user is deactivated",
	"chat not found",
	"use of closed network connection",
}

// Init configures the Sentry client. An empty dsn leaves reporting in
// log-only mode.
func Init(dsn, environment string) error {
	if strings.TrimSpace(dsn) == "" {
		log.Printf("Reporting: SENTRY_DSN not set, errors are only logged")
		return nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	enabled.Store(true)
	return nil
}

// Flush waits up to timeout for buffered events.
func Flush(timeout time.Duration) {
	if enabled.Load() {
		sentry.Flush(timeout)
	}
}

func shouldIgnore(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	errStr := err.Error()
	for _, ignored := range ignoredErrors {
		if strings.Contains(errStr, ignored) {
			return true
		}
	}
	return false
}

// CaptureError logs err locally and reports it to Sentry.
func CaptureError(err error, message string) {
	log.Printf("%s: %v", message, err)
	if !enabled.Load() || shouldIgnore(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetExtra("message", message)
		sentry.CaptureException(err)
	})
}

// CaptureErrorf is CaptureError with a formatted message.
func CaptureErrorf(err error, format string, args ...interface{}) {
	CaptureError(err, fmt.Sprintf(format, args...))
}

// CaptureUserError reports err tagged with the Telegram user it affected.
func CaptureUserError(err error, userID int64, message string) {
	log.Printf("%s (user %d): %v", message, userID, err)
	if !enabled.Load() || shouldIgnore(err) {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: fmt.Sprint(userID)})
		scope.SetExtra("message", message)
		sentry.CaptureException(err)
	})
}
