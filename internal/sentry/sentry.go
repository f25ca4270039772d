// Package sentry wires crash reporting for the pdk CLI. It follows the
// teacher's opt-out-by-default, PII-scrubbing pattern: disabled unless a
// DSN is supplied, and every outgoing event/breadcrumb is scrubbed of home
// paths, emails, and anything that looks like a secret before it leaves
// the process.
package sentry

import (
	"context"
	"net/http"
	"os"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const (
	flushTimeout      = 2 * time.Second
	httpClientTimeout = 10 * time.Second
	maxBreadcrumbs    = 20
)

var (
	homePathPattern = regexp.MustCompile(`(?i)(/home/|/Users/|C:\\Users\\)([^/\\:]+)`)
	secretPattern   = regexp.MustCompile(`(?i)(token|secret|password|api[_-]?key)[=:]\s*([A-Za-z0-9_\-./+]{6,})`)
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
)

// DSN is injected at build time via ldflags for release builds. Empty by
// default, which disables reporting entirely.
var DSN string

// Init configures the Sentry SDK for the given pdk version. It honors the
// DO_NOT_TRACK convention and PDK_NO_TELEMETRY, and returns a cleanup
// function that must be deferred so buffered events flush before exit.
func Init(version string) func() {
	if os.Getenv("DO_NOT_TRACK") == "1" || os.Getenv("PDK_NO_TELEMETRY") == "1" {
		return func() {}
	}

	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		dsn = DSN
	}
	if dsn == "" {
		return func() {}
	}

	env := os.Getenv("SENTRY_ENVIRONMENT")
	if env == "" {
		env = "production"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          "pdk@" + version,
		Environment:      env,
		ServerName:       runtime.GOOS + "-" + runtime.GOARCH,
		AttachStacktrace: true,
		SampleRate:       1.0,
		Debug:            env == "development",
		MaxBreadcrumbs:   maxBreadcrumbs,
		HTTPClient: &http.Client{
			Timeout: httpClientTimeout,
		},
		IgnoreErrors: []string{
			"context canceled",
			"context deadline exceeded",
			"signal: interrupt",
			"signal: terminated",
			"EOF",
			"broken pipe",
			"pipeline trust declined",
			"pipeline file not trusted",
		},
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			if hint != nil && hint.OriginalException != nil {
				msg := hint.OriginalException.Error()
				if strings.Contains(msg, "interrupt") ||
					strings.Contains(msg, "context canceled") ||
					strings.Contains(msg, "terminated") ||
					strings.Contains(msg, "trust declined") ||
					strings.Contains(msg, "not trusted") {
					return nil
				}
			}
			scrubEvent(event)
			return event
		},
		BeforeBreadcrumb: func(breadcrumb *sentry.Breadcrumb, hint *sentry.BreadcrumbHint) *sentry.Breadcrumb {
			breadcrumb.Message = scrubPII(breadcrumb.Message)
			return breadcrumb
		},
	})
	if err != nil {
		return func() {}
	}

	return func() {
		sentry.Flush(flushTimeout)
	}
}

// CaptureError reports err to Sentry. Safe to call when Sentry is disabled.
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CaptureMessage reports an informational message, e.g. an unsupported
// step kind encountered while parsing a pipeline file.
func CaptureMessage(msg string) {
	sentry.CaptureMessage(scrubPII(msg))
}

// RecoverAndPanic recovers from a panic, reports it, flushes, then
// re-panics so the process still terminates with a visible stack trace.
// Defer this before Init's cleanup so LIFO ordering flushes first.
func RecoverAndPanic() {
	if r := recover(); r != nil {
		sentry.CurrentHub().RecoverWithContext(context.Background(), r)
		sentry.Flush(flushTimeout)
		panic(r)
	}
}

// AddBreadcrumb records a step of the CLI's execution for context on the
// next captured error.
func AddBreadcrumb(category, message string) {
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   scrubPII(message),
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

func scrubPII(s string) string {
	s = homePathPattern.ReplaceAllString(s, "${1}[user]")
	s = secretPattern.ReplaceAllString(s, "${1}=[REDACTED]")
	s = emailPattern.ReplaceAllString(s, "[email]")
	return s
}

func scrubEvent(event *sentry.Event) {
	event.Message = scrubPII(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
		if event.Exception[i].Stacktrace != nil {
			for j := range event.Exception[i].Stacktrace.Frames {
				frame := &event.Exception[i].Stacktrace.Frames[j]
				frame.AbsPath = scrubPII(frame.AbsPath)
				frame.Filename = scrubPII(frame.Filename)
			}
		}
	}
	for i := range event.Breadcrumbs {
		event.Breadcrumbs[i].Message = scrubPII(event.Breadcrumbs[i].Message)
	}
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}
	for key, value := range event.Tags {
		event.Tags[key] = scrubPII(value)
	}
}
