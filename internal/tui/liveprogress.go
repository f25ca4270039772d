package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// JobEventKind is the lifecycle transition a JobEventMsg reports.
type JobEventKind int

const (
	JobEventStart JobEventKind = iota
	JobEventFinish
	JobEventSkip
)

// JobEventMsg is sent to a running LiveProgressModel program as the
// scheduler's ProgressHooks fire, so the view updates as jobs actually
// start and finish instead of only after the whole run completes.
type JobEventMsg struct {
	Kind    JobEventKind
	ID      string
	Success bool
}

// DoneMsg tells the program the run has finished and it should exit.
type DoneMsg struct{}

// LiveProgressModel renders a JobTracker live, animating a spinner next
// to whichever job is currently running.
type LiveProgressModel struct {
	tracker *JobTracker
	spin    spinner.Model
}

// NewLiveProgressModel wraps tracker in a bubbletea program driven by
// JobEventMsg/DoneMsg sent from the scheduler's progress hooks.
func NewLiveProgressModel(tracker *JobTracker) *LiveProgressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = WarningStyle
	return &LiveProgressModel{tracker: tracker, spin: s}
}

func (m *LiveProgressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m *LiveProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case JobEventMsg:
		switch msg.Kind {
		case JobEventStart:
			m.tracker.Start(msg.ID)
		case JobEventFinish:
			m.tracker.Finish(msg.ID, msg.Success)
		case JobEventSkip:
			m.tracker.Skip(msg.ID)
		}
		return m, nil
	case DoneMsg:
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *LiveProgressModel) View() string {
	var b strings.Builder
	for _, j := range m.tracker.Jobs() {
		icon := j.Status.Icon()
		if j.Status == JobRunning {
			icon = m.spin.View()
		}
		b.WriteString(icon + " " + PrimaryStyle.Render(j.Name) + " " + MutedStyle.Render(j.Status.String()) + "\n")
	}
	return b.String()
}
