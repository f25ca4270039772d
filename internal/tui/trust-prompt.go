package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// TrustPromptInfo is the context shown to the user before they decide
// whether to trust a pipeline file (supplemented trust-on-first-run
// gate; the file's content hash, not a commit SHA, is what gets
// remembered).
type TrustPromptInfo struct {
	PipelinePath string
	ContentHash  string
}

// TrustPromptResult is the user's decision.
type TrustPromptResult struct {
	Trusted   bool
	Cancelled bool
}

// TrustPromptModel is a minimal yes/no Bubble Tea prompt.
type TrustPromptModel struct {
	info     TrustPromptInfo
	selected int // 0 = trust, 1 = decline
	result   *TrustPromptResult
	quitting bool
}

// NewTrustPromptModel builds a prompt for info.
func NewTrustPromptModel(info TrustPromptInfo) *TrustPromptModel {
	return &TrustPromptModel{info: info}
}

// GetResult returns the user's decision once the program has exited.
func (m *TrustPromptModel) GetResult() *TrustPromptResult { return m.result }

func (m *TrustPromptModel) Init() tea.Cmd { return nil }

func (m *TrustPromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch keyMsg.String() {
	case "up", "k", "down", "j", "tab":
		m.selected = 1 - m.selected
	case "y":
		m.result = &TrustPromptResult{Trusted: true}
		m.quitting = true
		return m, tea.Quit
	case "n", "esc":
		m.result = &TrustPromptResult{Trusted: false}
		m.quitting = true
		return m, tea.Quit
	case "enter":
		m.result = &TrustPromptResult{Trusted: m.selected == 0}
		m.quitting = true
		return m, tea.Quit
	case "ctrl+c":
		m.result = &TrustPromptResult{Cancelled: true}
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m *TrustPromptModel) View() string {
	if m.quitting {
		return ""
	}
	header := BoldPrimaryStyle.Render("Untrusted pipeline file")
	detail := MutedStyle.Render(fmt.Sprintf("%s (%s)", m.info.PipelinePath, shortHash(m.info.ContentHash)))
	body := PrimaryStyle.Render("This file has not been run before. Run its steps now?")

	yes, no := "Yes, run it", "No, cancel"
	if m.selected == 0 {
		yes = AccentStyle.Render("> " + yes)
		no = MutedStyle.Render("  " + no)
	} else {
		yes = MutedStyle.Render("  " + yes)
		no = AccentStyle.Render("> " + no)
	}

	hint := HintStyle.Render("↑/↓ to choose · enter to confirm · y/n shortcuts")
	return header + "\n" + detail + "\n\n" + body + "\n\n" + yes + "\n" + no + "\n\n" + hint
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
