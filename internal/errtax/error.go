package errtax

import (
	"fmt"
	"strings"
	"time"
)

// Context carries the structured, optional diagnostic fields from spec §7.
type Context struct {
	PipelineFile string
	Job          string
	Step         string
	Line         int
	Column       int
	ExitCode     *int
	ContainerID  string
	Image        string
	Duration     time.Duration
	Stdout       string
	Stderr       string
	Metadata     map[string]string
}

// Error is the structured failure type every typed component in this
// engine raises. It is never used for programmer-invariant violations -
// those panic, per spec §9.
type Error struct {
	Code        Code
	Message     string
	Context     *Context
	Suggestions []string
	cause       error
}

// New creates an Error with no context or suggestions.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error, preserving it for Unwrap.
func Wrap(code Code, cause error, message string) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithContext returns a copy of e with ctx attached.
func (e *Error) WithContext(ctx *Context) *Error {
	clone := *e
	clone.Context = ctx
	return &clone
}

// WithSuggestions returns a copy of e with suggestions appended.
func (e *Error) WithSuggestions(suggestions ...string) *Error {
	clone := *e
	clone.Suggestions = append(append([]string{}, clone.Suggestions...), suggestions...)
	return &clone
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Context != nil {
		if loc := e.Context.location(); loc != "" {
			sb.WriteString(" (")
			sb.WriteString(loc)
			sb.WriteString(")")
		}
	}
	return sb.String()
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.cause
}

func (c *Context) location() string {
	var parts []string
	if c.PipelineFile != "" {
		loc := c.PipelineFile
		if c.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, c.Line)
			if c.Column > 0 {
				loc = fmt.Sprintf("%s:%d", loc, c.Column)
			}
		}
		parts = append(parts, loc)
	}
	if c.Job != "" {
		parts = append(parts, "job="+c.Job)
	}
	if c.Step != "" {
		parts = append(parts, "step="+c.Step)
	}
	return strings.Join(parts, ", ")
}
