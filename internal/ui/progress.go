package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
)

// TransferProgress renders per-file progress bars for a running
// transfer. It wraps a bubbletea program so the session goroutines can
// push updates without touching the terminal themselves.
type TransferProgress struct {
	program *tea.Program
	done    chan struct{}
}

type progressItem struct {
	name    string
	total   int64
	current int64
	started time.Time
	running bool
}

type progressModel struct {
	items []*progressItem
	bars  []progress.Model
}

type updateMsg struct {
	index   int
	current int64
}

type finishMsg struct{}

type tickMsg time.Time

// NewTransferProgress builds the progress display for the given files.
func NewTransferProgress(names []string, sizes []int64) *TransferProgress {
	items := make([]*progressItem, len(names))
	bars := make([]progress.Model, len(names))
	for i := range names {
		items[i] = &progressItem{name: names[i], total: sizes[i]}
		bars[i] = progress.New(
			progress.WithGradient("#38bdf8", "#34d399"),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		)
	}

	model := &progressModel{items: items, bars: bars}
	return &TransferProgress{
		program: tea.NewProgram(model, tea.WithoutSignalHandler()),
		done:    make(chan struct{}),
	}
}

// Start runs the display in the background.
func (p *TransferProgress) Start() {
	go func() {
		defer close(p.done)
		p.program.Run()
	}()
}

// Update reports progress for one file.
func (p *TransferProgress) Update(index int, current int64) {
	p.program.Send(updateMsg{index: index, current: current})
}

// Finish stops the display and waits for the terminal to settle.
func (p *TransferProgress) Finish() {
	p.program.Send(finishMsg{})
	<-p.done
}

func (m *progressModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case updateMsg:
		if msg.index >= 0 && msg.index < len(m.items) {
			item := m.items[msg.index]
			if !item.running && msg.current > 0 {
				item.running = true
				item.started = time.Now()
			}
			item.current = msg.current
		}
		return m, nil

	case finishMsg:
		return m, tea.Quit

	case tickMsg:
		return m, tick()
	}
	return m, nil
}

func (m *progressModel) View() string {
	var out string
	for i, item := range m.items {
		pct := 0.0
		if item.total > 0 {
			pct = float64(item.current) / float64(item.total)
		}

		speed := ""
		if item.running {
			elapsed := time.Since(item.started).Seconds()
			if elapsed > 0 {
				speed = FormatSpeed(float64(item.current) / elapsed)
			}
		}

		out += fmt.Sprintf("%s %s %s/%s %s\n",
			MutedStyle.Render(Truncate(item.name, 28)),
			m.bars[i].ViewAs(pct),
			FormatSize(item.current),
			FormatSize(item.total),
			MutedStyle.Render(speed),
		)
	}
	return out
}
