package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// JobState is a per-job run override the interactive job browser applies
// on top of the pipeline's own job ordering.
type JobState string

const (
	JobStateAuto JobState = ""     // run in its declared order, subject to its own condition
	JobStateRun  JobState = "run"  // force-include even if other jobs are force-included too
	JobStateSkip JobState = "skip" // exclude from this run
)

// JobSelectItem is one row of the interactive job browser.
type JobSelectItem struct {
	ID        string
	Name      string
	StepCount int
	RunnerTag string
	State     JobState
}

// JobSelectModel is the bubbletea model for the `pdk interactive` job
// browser: up/down to move, left/right/enter to cycle auto -> run ->
// skip, "s" to confirm and run, "q"/esc to cancel.
type JobSelectModel struct {
	jobs     []JobSelectItem
	cursor   int
	quitting bool
	saved    bool
}

// NewJobSelectModel builds a browser over jobs, in declared order.
func NewJobSelectModel(jobs []JobSelectItem) *JobSelectModel {
	cp := make([]JobSelectItem, len(jobs))
	copy(cp, jobs)
	return &JobSelectModel{jobs: cp}
}

func (m *JobSelectModel) Init() tea.Cmd { return nil }

func (m *JobSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "q", "esc", "ctrl+c":
		m.quitting = true
		return m, tea.Quit
	case "s":
		m.saved = true
		m.quitting = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.jobs)-1 {
			m.cursor++
		}
	case "left", "h":
		m.cycle(-1)
	case "right", "l", "enter", " ":
		m.cycle(1)
	}
	return m, nil
}

func (m *JobSelectModel) cycle(direction int) {
	if len(m.jobs) == 0 || m.cursor >= len(m.jobs) {
		return
	}
	order := []JobState{JobStateAuto, JobStateRun, JobStateSkip}
	current := 0
	for i, s := range order {
		if s == m.jobs[m.cursor].State {
			current = i
			break
		}
	}
	next := (current + direction + len(order)) % len(order)
	m.jobs[m.cursor].State = order[next]
}

func (m *JobSelectModel) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	for i, job := range m.jobs {
		b.WriteString(m.renderJob(i, job))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(HintStyle.Render("[j/k] navigate  [enter/h/l] cycle state  [s] run selection  [q] cancel"))
	return b.String()
}

func (m *JobSelectModel) renderJob(index int, job JobSelectItem) string {
	cursor := "  "
	if index == m.cursor {
		cursor = AccentStyle.Render("> ")
	}

	var stateDisplay string
	switch job.State {
	case JobStateRun:
		stateDisplay = SuccessStyle.Render("[run] ")
	case JobStateSkip:
		stateDisplay = WarningStyle.Render("[skip]")
	default:
		stateDisplay = MutedStyle.Render("[auto]")
	}

	name := PrimaryStyle.Render(job.Name)
	if index == m.cursor {
		name = BoldPrimaryStyle.Render(job.Name)
	}

	detail := MutedStyle.Render(job.RunnerTag)
	return cursor + stateDisplay + " " + name + " " + detail
}

// WasSaved reports whether the user confirmed the selection with "s"
// rather than cancelling.
func (m *JobSelectModel) WasSaved() bool {
	return m.saved
}

// Selection returns the final per-job states, keyed by job ID.
func (m *JobSelectModel) Selection() map[string]JobState {
	out := make(map[string]JobState, len(m.jobs))
	for _, job := range m.jobs {
		out[job.ID] = job.State
	}
	return out
}
