package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/brodvik/cabinheat/internal/heater"
	"github.com/brodvik/cabinheat/internal/protocol"
)

// Controller is the coordinator surface the watch UI drives.
// Satisfied by *heater.Coordinator.
type Controller interface {
	LatestSnapshot() heater.Snapshot
	Refresh(ctx context.Context) heater.Snapshot
	SetPower(ctx context.Context, on bool) error
	SetTemperature(ctx context.Context, celsius int) error
	SetLevel(ctx context.Context, level int) error
}

// snapshotInterval is how often the view re-reads the latest snapshot.
// The coordinator polls the device on its own cadence; this only refreshes
// the screen.
const snapshotInterval = time.Second

// commandTimeout bounds a key-initiated command, settle and refresh included.
const commandTimeout = 30 * time.Second

type tickMsg time.Time

type cmdDoneMsg struct {
	label string
	err   error
}

type keyMap struct {
	Power     key.Binding
	TempUp    key.Binding
	TempDown  key.Binding
	LevelUp   key.Binding
	LevelDown key.Binding
	Refresh   key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Power: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "power"),
		),
		TempUp: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "temp +"),
		),
		TempDown: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "temp -"),
		),
		LevelUp: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "level +"),
		),
		LevelDown: key.NewBinding(
			key.WithKeys("-", "_"),
			key.WithHelp("-", "level -"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Power, k.TempUp, k.TempDown, k.LevelUp, k.LevelDown, k.Refresh, k.Quit}
}

// FullHelp implements help.KeyMap
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Power, k.Refresh, k.Quit},
		{k.TempUp, k.TempDown, k.LevelUp, k.LevelDown},
	}
}

// WatchModel is the live status view: one bordered panel showing the
// latest snapshot, refreshed every second, with single-key controls.
type WatchModel struct {
	ctrl    Controller
	title   string
	address string

	snap    heater.Snapshot
	pending string // label of the in-flight command, empty when idle
	cmdErr  string

	spin     spinner.Model
	levelBar progress.Model
	keys     keyMap
	help     help.Model
	width    int
}

// NewWatchModel creates the watch view for one heater. title is the
// nickname or address shown in the header.
func NewWatchModel(ctrl Controller, title, address string) WatchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = StateTransitionStyle

	bar := progress.New(
		progress.WithDefaultGradient(),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)

	return WatchModel{
		ctrl:     ctrl,
		title:    title,
		address:  address,
		snap:     ctrl.LatestSnapshot(),
		spin:     s,
		levelBar: bar,
		keys:     defaultKeyMap(),
		help:     help.New(),
		width:    GetTerminalWidth(),
	}
}

// Init implements tea.Model
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(snapshotInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// issue runs one controller command off the update loop.
func issue(label string, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()
		return cmdDoneMsg{label: label, err: fn(ctx)}
	}
}

// Update implements tea.Model
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width < MinTerminalWidth {
			m.width = MinTerminalWidth
		}
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}
		m.help.Width = m.width
		return m, nil

	case tickMsg:
		m.snap = m.ctrl.LatestSnapshot()
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case cmdDoneMsg:
		m.pending = ""
		if msg.err != nil {
			m.cmdErr = heater.ShortMessage(msg.err, 60)
		} else {
			m.cmdErr = ""
		}
		m.snap = m.ctrl.LatestSnapshot()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.pending != "" {
		// One command at a time; the queue would serialize them anyway,
		// but stacking keystrokes against a slow device helps nobody.
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Power):
		on := !m.snap.On
		label := "turning off"
		if on {
			label = "turning on"
		}
		m.pending = label
		return m, issue(label, func(ctx context.Context) error {
			return m.ctrl.SetPower(ctx, on)
		})

	case key.Matches(msg, m.keys.TempUp), key.Matches(msg, m.keys.TempDown):
		target := m.snap.TargetTemperature
		if key.Matches(msg, m.keys.TempUp) {
			target++
		} else {
			target--
		}
		if target < protocol.MinTemperature || target > protocol.MaxTemperature {
			return m, nil
		}
		m.pending = fmt.Sprintf("setting %d°C", target)
		return m, issue(m.pending, func(ctx context.Context) error {
			return m.ctrl.SetTemperature(ctx, target)
		})

	case key.Matches(msg, m.keys.LevelUp), key.Matches(msg, m.keys.LevelDown):
		level := m.snap.TargetLevel
		if key.Matches(msg, m.keys.LevelUp) {
			level++
		} else {
			level--
		}
		if level < protocol.MinLevel || level > protocol.MaxLevel {
			return m, nil
		}
		m.pending = fmt.Sprintf("setting level %d", level)
		return m, issue(m.pending, func(ctx context.Context) error {
			return m.ctrl.SetLevel(ctx, level)
		})

	case key.Matches(msg, m.keys.Refresh):
		m.pending = "refreshing"
		return m, issue("refreshing", func(ctx context.Context) error {
			m.ctrl.Refresh(ctx)
			return nil
		})
	}

	return m, nil
}

// View implements tea.Model
func (m WatchModel) View() string {
	var b strings.Builder

	title := TitleStyle.Render(m.title) + " " + AddressStyle.Render("("+m.address+")")
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(m.renderField("State", m.renderState()))
	b.WriteString(m.renderField("Mode", describeMode(m.snap.RunMode)))
	if m.snap.RunMode == 2 {
		b.WriteString(m.renderField("Target", fmt.Sprintf("%d°C", m.snap.TargetTemperature)))
	}
	b.WriteString(m.renderField("Level", m.renderLevel()))
	b.WriteString(m.renderField("Room", fmt.Sprintf("%.1f°C", m.snap.RoomTemperature)))
	b.WriteString(m.renderField("Chamber", fmt.Sprintf("%.1f°C", m.snap.ChamberTemperature)))
	if m.snap.Voltage > 0 {
		b.WriteString(m.renderField("Voltage", fmt.Sprintf("%.1fV", m.snap.Voltage)))
	}
	if m.snap.ErrorCode != 0 {
		b.WriteString(m.renderField("Fault", ErrorStyle.Render(fmt.Sprintf("code 0x%02x", m.snap.ErrorCode))))
	}
	b.WriteString(m.renderField("Link", m.renderConnection()))

	if m.pending != "" {
		b.WriteString("\n")
		b.WriteString(FieldKeyStyle.Render(""))
		b.WriteString(PendingStyle.Render(m.spin.View() + " " + m.pending))
		b.WriteString("\n")
	}
	if m.cmdErr != "" {
		b.WriteString("\n")
		b.WriteString(FieldKeyStyle.Render(""))
		b.WriteString(ErrorStyle.Render(m.cmdErr))
		b.WriteString("\n")
	}

	box := BoxStyle(m.width).Render(b.String())
	return box + "\n" + m.help.View(m.keys) + "\n"
}

func (m WatchModel) renderField(k, v string) string {
	return FieldKeyStyle.Render(k+":") + " " + v + "\n"
}

func (m WatchModel) renderState() string {
	state := m.snap.RunState
	name := m.snap.RunStateName
	switch state {
	case protocol.RunStateHeating:
		return StateOnStyle.Render(name)
	case protocol.RunStateOff, protocol.RunStateStandby:
		return StateOffStyle.Render(name)
	default:
		return StateTransitionStyle.Render(m.spin.View() + " " + name)
	}
}

func (m WatchModel) renderLevel() string {
	bar := m.levelBar.ViewAs(float64(m.snap.TargetLevel) / float64(protocol.MaxLevel))
	return fmt.Sprintf("%s %d/%d", bar, m.snap.TargetLevel, protocol.MaxLevel)
}

func (m WatchModel) renderConnection() string {
	switch m.snap.Connection {
	case heater.ConnectionConnected:
		return StateOnStyle.Render("connected")
	case heater.ConnectionConnecting, heater.ConnectionInitializing:
		return StateTransitionStyle.Render(m.spin.View() + " " + m.snap.Connection.String())
	case heater.ConnectionError:
		msg := m.snap.Connection.String()
		if m.snap.ConnectionError != "" {
			msg += ": " + m.snap.ConnectionError
		}
		return ErrorStyle.Render(msg)
	default:
		return StateOffStyle.Render(m.snap.Connection.String())
	}
}

// describeMode names the run mode register for display
func describeMode(mode byte) string {
	switch mode {
	case 0, 1:
		return fmt.Sprintf("level (%d)", mode)
	case 2:
		return "thermostat"
	default:
		return fmt.Sprintf("mode %d", mode)
	}
}

// RunWatch runs the watch UI until the user quits.
func RunWatch(ctrl Controller, title, address string) error {
	p := tea.NewProgram(NewWatchModel(ctrl, title, address))
	_, err := p.Run()
	return err
}
