package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"cryptoscan/internal/cryptoscan/styles"
	"cryptoscan/internal/logging"
	"cryptoscan/internal/report"
	"cryptoscan/internal/scan"
)

type scanProgressMsg string

type scanFinishedMsg struct {
	result *scan.Result
}

// scanModel drives the interactive scan view: a spinner with progress
// text while the background worker runs, then a scrollable report.
type scanModel struct {
	viewport   viewport.Model
	spinner    spinner.Model
	events     chan tea.Msg
	cancel     context.CancelFunc
	inputs     *scanInputs
	binaryPath string

	width, height int
	scanning      bool
	cancelling    bool
	progress      string
	markdown      string
}

func newScanModel(path string, inputs *scanInputs, events chan tea.Msg, cancel context.CancelFunc) scanModel {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("170"))

	return scanModel{
		viewport:   vp,
		spinner:    s,
		events:     events,
		cancel:     cancel,
		inputs:     inputs,
		binaryPath: path,
		width:      80,
		height:     24,
		scanning:   true,
		progress:   "Beginning scan for crypto constructs...",
	}
}

func waitForScanEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}

func (m scanModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForScanEvent(m.events))
}

func (m scanModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case scanProgressMsg:
		m.progress = string(msg)
		return m, waitForScanEvent(m.events)

	case scanFinishedMsg:
		m.scanning = false
		m.markdown = renderResult(msg.result, m.inputs)
		m.updateContent()
		return m, nil

	case spinner.TickMsg:
		if !m.scanning {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.updateContent()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.scanning {
				// Cooperative cancellation: the worker still delivers
				// partial results before the view switches.
				m.cancelling = true
				m.cancel()
				return m, nil
			}
			return m, tea.Quit
		}
	}

	if !m.scanning {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m scanModel) View() string {
	var content string
	if m.scanning {
		progress := m.progress
		if m.cancelling {
			progress = "Cancelling scan, checking for partial results..."
		}
		content = fmt.Sprintf("\n %s %s", m.spinner.View(), progress)
	} else {
		content = m.viewport.View()
	}

	menu := fmt.Sprintf(" %s | Q: quit ", m.binaryPath)
	if m.scanning {
		menu = fmt.Sprintf(" %s | Q: cancel scan ", m.binaryPath)
	}
	menuStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("252")).
		Padding(0, 1).
		Width(m.width)

	return content + "\n" + menuStyle.Render(menu)
}

func (m *scanModel) updateContent() {
	if m.markdown == "" {
		return
	}
	width := m.width
	if width == 0 {
		width = 80
	}
	renderer := styles.GetMarkdownRenderer(width - 2)
	rendered, err := renderer.Render(m.markdown)
	if err != nil {
		rendered = m.markdown
	}
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

func renderResult(result *scan.Result, inputs *scanInputs) string {
	if len(result.Matches) == 0 && !result.Cancelled {
		return fmt.Sprintf("# %s\n\nNo crypto constructs identified.", report.DefaultTitle)
	}
	return report.New(result).WithSymbols(inputs.im).Markdown()
}

func runScanTUI(path string) error {
	lc := logging.NewLogger()
	defer lc.Close()
	logger := lc.Logger

	inputs, err := buildScanInputs(path, logger)
	if err != nil {
		return err
	}
	defer inputs.im.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan tea.Msg, 64)
	orch := inputs.orchestrator(func(msg string) {
		select {
		case events <- scanProgressMsg(msg):
		default:
			// UI is behind; coarse progress can be dropped.
		}
	}, logger)

	go func() {
		events <- scanFinishedMsg{result: orch.Run(ctx)}
	}()

	program := tea.NewProgram(
		newScanModel(path, inputs, events, cancel),
		tea.WithAltScreen(),
	)
	if _, err := program.Run(); err != nil {
		slog.Error("TUI run error", "error", err)
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
