package tui

import (
	"fmt"
	"os"
	"strings"
)

// PreflightCheck is one probe `doctor` runs: executor-validator
// reachability, container-driver health, workspace write-access, or the
// secret-store decrypt round-trip (spec §7 "doctor diagnostics").
type PreflightCheck struct {
	Name   string
	Status string // "pending", "running", "success", "error"
	Detail string
	Error  error
}

var (
	checkPendingStyle = MutedStyle
	checkRunningStyle = WarningStyle
	checkSuccessStyle = SuccessStyle
	checkErrorStyle   = ErrorStyle
)

// RenderPreflightCheck renders a single check line.
func RenderPreflightCheck(check PreflightCheck) string {
	var icon string
	var style = checkPendingStyle
	var suffix string

	switch check.Status {
	case "pending":
		icon = "○"
	case "running":
		icon = "◐"
		style = checkRunningStyle
	case "success":
		icon = "✓"
		style = checkSuccessStyle
		if check.Detail != "" {
			suffix = fmt.Sprintf(" (%s)", check.Detail)
		}
	case "error":
		icon = "✗"
		style = checkErrorStyle
		if check.Error != nil {
			suffix = fmt.Sprintf(" (%s)", check.Error.Error())
		}
	default:
		icon = "○"
	}

	return style.Render(fmt.Sprintf("%s %s%s", icon, check.Name, suffix))
}

// PreflightDisplay renders the running set of doctor checks to stderr.
type PreflightDisplay struct {
	checks []PreflightCheck
}

// NewPreflightDisplay starts a display with every check pending.
func NewPreflightDisplay(names []string) *PreflightDisplay {
	checks := make([]PreflightCheck, len(names))
	for i, name := range names {
		checks[i] = PreflightCheck{Name: name, Status: "pending"}
	}
	return &PreflightDisplay{checks: checks}
}

// UpdateCheck records the outcome of a named check.
func (p *PreflightDisplay) UpdateCheck(name, status, detail string, err error) {
	for i := range p.checks {
		if p.checks[i].Name == name {
			p.checks[i].Status = status
			p.checks[i].Detail = detail
			p.checks[i].Error = err
			return
		}
	}
}

// Render prints every check's current state.
func (p *PreflightDisplay) Render() {
	lines := make([]string, 0, len(p.checks))
	for _, check := range p.checks {
		lines = append(lines, RenderPreflightCheck(check))
	}
	fmt.Fprintln(os.Stderr, strings.Join(lines, "\n"))
}

// AllSuccess reports whether every check passed.
func (p *PreflightDisplay) AllSuccess() bool {
	for _, check := range p.checks {
		if check.Status != "success" {
			return false
		}
	}
	return true
}
