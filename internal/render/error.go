// Package render renders structured errors and dry-run plans for the CLI
// boundary (spec §7's "coloured error prelude with code and message,
// context block, then a Suggestions list" and §6.5's JSON/text dry-run
// shapes), built on the teacher's lipgloss styling conventions with the
// same colour palette as internal/tui, without importing internal/tui.
package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/pdk-cli/pdk/internal/errtax"
)

var (
	codeStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	warnCodeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	messageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	suggestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
)

// Error renders one structured error: a coloured prelude with its code
// and message, an optional context block, then a Suggestions list.
func Error(err *errtax.Error) string {
	var b strings.Builder

	style := codeStyle
	if err.Code.Severity == errtax.SeverityWarning {
		style = warnCodeStyle
	}
	fmt.Fprintf(&b, "%s %s\n", style.Render(err.Code.String()), messageStyle.Render(err.Message))

	if ctx := err.Context; ctx != nil {
		if line := contextLine(ctx); line != "" {
			fmt.Fprintf(&b, "  %s\n", contextStyle.Render(line))
		}
		if ctx.Stdout != "" {
			fmt.Fprintf(&b, "  %s\n", contextStyle.Render("stdout: "+truncate(ctx.Stdout, 200)))
		}
		if ctx.Stderr != "" {
			fmt.Fprintf(&b, "  %s\n", contextStyle.Render("stderr: "+truncate(ctx.Stderr, 200)))
		}
	}

	if suggestions := err.Suggestions; len(suggestions) > 0 {
		b.WriteString(suggestStyle.Render("Suggestions:") + "\n")
		for _, s := range suggestions {
			fmt.Fprintf(&b, "  %s %s\n", suggestStyle.Render("·"), messageStyle.Render(s))
		}
	}

	return b.String()
}

// Errors renders a list of structured errors, separated by a blank line.
func Errors(errs []*errtax.Error) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, Error(e))
	}
	return strings.Join(parts, "\n")
}

func contextLine(ctx *errtax.Context) string {
	var parts []string
	if ctx.PipelineFile != "" {
		loc := ctx.PipelineFile
		if ctx.Line > 0 {
			loc = fmt.Sprintf("%s:%d", loc, ctx.Line)
			if ctx.Column > 0 {
				loc = fmt.Sprintf("%s:%d", loc, ctx.Column)
			}
		}
		parts = append(parts, loc)
	}
	if ctx.Job != "" {
		parts = append(parts, "job "+ctx.Job)
	}
	if ctx.Step != "" {
		parts = append(parts, "step "+ctx.Step)
	}
	if ctx.ExitCode != nil {
		parts = append(parts, fmt.Sprintf("exit %d", *ctx.ExitCode))
	}
	if ctx.Image != "" {
		parts = append(parts, "image "+ctx.Image)
	}
	if ctx.Duration > 0 {
		parts = append(parts, ctx.Duration.String())
	}
	return strings.Join(parts, " · ")
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

// ExitCodeSuggestion maps a non-zero process exit code to a human
// explanation (spec §7's exit-code suggestion table).
func ExitCodeSuggestion(code int) string {
	switch code {
	case 1:
		return "generic error"
	case 2:
		return "usage error"
	case 126:
		return "command found but not executable"
	case 127:
		return "command not found"
	case 128:
		return "invalid argument to exit"
	case 137:
		return "killed (out of memory)"
	case 143:
		return "terminated (SIGTERM)"
	default:
		if code > 128 {
			return fmt.Sprintf("killed by signal %d", code-128)
		}
		return ""
	}
}
