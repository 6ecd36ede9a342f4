package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"repl-toolkit/cancellation"
	"repl-toolkit/keys"
)

// Cancel reasons passed to the coordinator by the thinking indicator.
const (
	ReasonUserCancel = "user cancelled"
	ReasonInterrupt  = "interrupted"
)

type stopThinkingMsg struct{}

// ThinkingModel shows a spinner while a request runs and turns the cancel keys into
// a cancel signal.
type ThinkingModel struct {
	spinner spinner.Model
	label   string
	trigger func(reason string)

	labelStyle lipgloss.Style
	cancelling bool
	stopped    bool
}

// NewThinkingModel creates the indicator. trigger is called for every cancel key
// press; the coordinator ignores all but the first.
func NewThinkingModel(trigger func(reason string)) *ThinkingModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	return &ThinkingModel{
		spinner:    sp,
		label:      "Thinking... (Alt+C to cancel)",
		trigger:    trigger,
		labelStyle: lipgloss.NewStyle().Faint(true),
	}
}

func (m *ThinkingModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *ThinkingModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stopThinkingMsg:
		m.stopped = true
		return m, tea.Quit
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyCancel]):
			m.cancel(ReasonUserCancel)
		case key.Matches(msg, keys.GlobalkeyBindings[keys.KeyInterrupt]):
			m.cancel(ReasonInterrupt)
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *ThinkingModel) cancel(reason string) {
	if m.trigger != nil {
		m.trigger(reason)
	}
	m.cancelling = true
	m.label = "Cancelling..."
}

// Cancelling reports whether a cancel key has been pressed.
func (m *ThinkingModel) Cancelling() bool {
	return m.cancelling
}

func (m *ThinkingModel) View() string {
	if m.stopped {
		return ""
	}
	return m.spinner.View() + " " + m.labelStyle.Render(m.label)
}

// Thinking returns a listener that runs the indicator for the duration of a request.
// While it runs, Print goes above the spinner.
func (t *Terminal) Thinking(ctx context.Context) cancellation.Listener {
	return cancellation.ListenerFunc(func(trigger func(reason string)) func() {
		model := NewThinkingModel(trigger)
		done := make(chan struct{})
		started := make(chan *tea.Program, 1)

		go func() {
			defer close(done)
			opts := []tea.ProgramOption{tea.WithOutput(t.out), tea.WithContext(ctx)}
			if t.in != nil {
				opts = append(opts, tea.WithInput(t.in))
			}
			opts = append(opts, t.programOpts...)

			p := tea.NewProgram(model, opts...)
			t.setProgram(p)
			started <- p
			if _, err := p.Run(); err != nil {
				t.debugf("thinking indicator stopped: %v", err)
			}
			t.clearProgram(p)
		}()
		p := <-started

		return func() {
			p.Send(stopThinkingMsg{})
			<-done
		}
	})
}
