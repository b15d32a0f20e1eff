package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"tutor-dispatch/internal/adapter/tui/theme"
	"tutor-dispatch/internal/adapter/tui/uxerror"
	"tutor-dispatch/internal/domain"
	"tutor-dispatch/internal/infra/middleware"
)

// Deps are the chat model's dependencies.
type Deps struct {
	Tutor      Asker
	Agents     []string // keys accepted by /agent
	Agent      string   // initial direct specialist; empty routes via the coordinator
	SessionID  string   // empty generates one
	ModelLabel string
	Logger     *slog.Logger
}

type role int

const (
	roleUser role = iota
	roleTutor
	roleSystem
	roleError
)

type entry struct {
	role     role
	text     string
	meta     string
	rendered string
}

// Model is the root Bubble Tea model for the chat.
type Model struct {
	deps Deps

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries   []entry
	agent     string
	sessionID string

	waiting   bool
	streaming bool
	streamBuf []rune
	streamPos int
	streamCfg StreamConfig

	gen      uint64
	cancelFn context.CancelFunc

	width    int
	height   int
	quitting bool
}

// New creates the chat model.
func New(deps Deps) Model {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	sessionID := deps.SessionID
	if sessionID == "" {
		sessionID = middleware.NewID()
	}

	ta := textarea.New()
	ta.Placeholder = "Ask a math, physics or general question..."
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 8000
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	m := Model{
		deps:      deps,
		viewport:  viewport.New(80, 20),
		input:     ta,
		spinner:   sp,
		agent:     deps.Agent,
		sessionID: sessionID,
		streamCfg: StreamConfigForSpeed(StreamNormal),
	}
	m.addSystem("Type a question and press Enter. /help lists commands.")
	return m
}

// SessionID returns the session the chat is writing to.
func (m Model) SessionID() string { return m.sessionID }

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles all incoming messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case AnswerMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		return m.handleAnswer(msg)

	case StreamTickMsg:
		return m.handleStreamTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	if !m.waiting {
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the chat.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	mode := "auto routing"
	if m.agent != "" {
		mode = "direct: " + m.agent
	}
	header := theme.TutorLabel.Render("AI Tutor") + theme.Dim.Render("  "+mode)

	inputView := m.input.View()
	if m.waiting {
		inputView = theme.Dim.Render("> waiting for the tutor...") + "\n" + m.spinner.View() + " Thinking..."
	}

	status := theme.StatusBar.Render(fmt.Sprintf("%s %s  %s %s  %s speed:%s  %s",
		theme.StatusKey.Render("session"), shortID(m.sessionID),
		theme.StatusKey.Render("model"), m.deps.ModelLabel,
		theme.SymbolBullet, m.streamCfg.Speed,
		"Ctrl+C quit  Esc cancel"))

	return lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), inputView, status)
}

func (m *Model) layout() {
	const headerH, inputH, statusH = 1, 3, 1
	contentH := max(m.height-headerH-inputH-statusH, 5)
	m.viewport.Width = m.width
	m.viewport.Height = contentH
	m.input.SetWidth(max(m.width-2, 10))
	m.renderer = nil
	for i := range m.entries {
		m.entries[i].rendered = ""
	}
	m.refresh()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancel("Request cancelled.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		if m.waiting {
			m.cancel("Request cancelled.")
		}
		return m, nil

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyEnter:
		if m.waiting {
			return m, nil
		}
		value := m.input.Value()
		m.input.Reset()
		return m.submit(value)
	}

	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(value string) (tea.Model, tea.Cmd) {
	value = strings.TrimSpace(value)
	if value == "" {
		return m, nil
	}
	if strings.HasPrefix(value, "/") {
		return m.command(value)
	}

	req, err := domain.NewTaskRequest(value, "", "", m.sessionID)
	if err != nil {
		m.addError(err)
		return m, nil
	}

	m.finishStream()
	m.entries = append(m.entries, entry{role: roleUser, text: value})
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel
	m.waiting = true
	m.input.Blur()
	m.refresh()
	return m, tea.Batch(askCmd(ctx, m.deps.Tutor, m.agent, req, m.gen), m.spinner.Tick)
}

func (m Model) command(line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		m.quitting = true
		return m, tea.Quit
	case "/clear":
		m.entries = nil
		m.sessionID = middleware.NewID()
		m.addSystem("Started a new session.")
	case "/speed":
		m.streamCfg = StreamConfigForSpeed(m.streamCfg.Speed.next())
		m.addSystem("Streaming speed: " + m.streamCfg.Speed.String())
	case "/agent":
		m.switchAgent(fields[1:])
	case "/help":
		m.addSystem("Commands:\n" +
			"  /agent [key|auto]  ask one specialist directly, or route automatically\n" +
			"  /speed             cycle answer streaming speed\n" +
			"  /clear             clear the screen and start a new session\n" +
			"  /quit              exit")
	default:
		m.addSystem("Unknown command " + fields[0] + ". /help lists commands.")
	}
	return m, nil
}

func (m *Model) switchAgent(args []string) {
	if len(args) == 0 {
		if m.agent == "" {
			m.addSystem("Routing automatically. Specialists: " + strings.Join(m.deps.Agents, ", "))
		} else {
			m.addSystem("Asking " + m.agent + " directly.")
		}
		return
	}
	key := strings.ToLower(args[0])
	switch {
	case key == "auto":
		m.agent = ""
		m.addSystem("Routing automatically.")
	case len(m.deps.Agents) > 0 && !slices.Contains(m.deps.Agents, key):
		m.addSystem(fmt.Sprintf("No specialist %q. Available: %s", key, strings.Join(m.deps.Agents, ", ")))
	default:
		m.agent = key
		m.addSystem("Asking " + key + " directly.")
	}
}

func (m Model) handleAnswer(msg AnswerMsg) (tea.Model, tea.Cmd) {
	m.waiting = false
	m.cancelFn = nil
	m.input.Focus()

	if msg.Err != nil {
		if !errors.Is(msg.Err, context.Canceled) {
			m.addError(msg.Err)
		}
		return m, nil
	}

	resp := msg.Answer.Response
	meta := fmt.Sprintf("%s %s  confidence %s  %.0fms",
		theme.SymbolArrowR, msg.Answer.AgentUsed,
		theme.ConfidenceStyle(resp.Confidence).Render(fmt.Sprintf("%.2f", resp.Confidence)),
		resp.ExecutionTimeMS)
	m.entries = append(m.entries, entry{role: roleTutor, text: resp.Content, meta: meta})

	m.streamBuf = []rune(resp.Content)
	m.streamPos = 0
	if m.streamCfg.ChunkSize <= 0 || len(m.streamBuf) == 0 {
		m.finishStream()
		return m, nil
	}
	m.streaming = true
	m.refresh()
	return m, streamTickCmd(m.streamCfg.TickRate)
}

func (m Model) handleStreamTick() (tea.Model, tea.Cmd) {
	if !m.streaming {
		return m, nil
	}
	var done bool
	m.streamPos, done = m.streamCfg.reveal(m.streamBuf, m.streamPos)
	if done {
		m.finishStream()
		return m, nil
	}
	m.refresh()
	return m, streamTickCmd(m.streamCfg.TickRate)
}

func (m *Model) finishStream() {
	m.streaming = false
	m.streamBuf = nil
	m.streamPos = 0
	m.refresh()
}

func (m *Model) cancel(note string) {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.gen++
	m.waiting = false
	m.input.Focus()
	m.addSystem(note)
}

func (m *Model) addSystem(text string) {
	m.entries = append(m.entries, entry{role: roleSystem, text: text})
	m.refresh()
}

func (m *Model) addError(err error) {
	m.deps.Logger.Debug("chat request failed", "error", err)
	m.entries = append(m.entries, entry{role: roleError, text: uxerror.Humanize(err).Render()})
	m.refresh()
}

func (m *Model) refresh() {
	var sb strings.Builder
	for i := range m.entries {
		e := &m.entries[i]
		last := i == len(m.entries)-1
		switch e.role {
		case roleUser:
			sb.WriteString(theme.UserLabel.Render(theme.SymbolUser) + "\n  " + e.text + "\n\n")
		case roleSystem:
			sb.WriteString(theme.Dim.Render(e.text) + "\n\n")
		case roleError:
			sb.WriteString(theme.ErrorLabel.Render(theme.SymbolError+" "+e.text) + "\n\n")
		case roleTutor:
			sb.WriteString(theme.TutorLabel.Render(theme.SymbolTutor) + "\n")
			if last && m.streaming {
				sb.WriteString(string(m.streamBuf[:m.streamPos]) + "\n\n")
				continue
			}
			if e.rendered == "" {
				e.rendered = m.markdown(e.text)
			}
			sb.WriteString(e.rendered)
			sb.WriteString(theme.Meta.Render(e.meta) + "\n\n")
		}
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *Model) markdown(text string) string {
	if m.renderer == nil {
		width := max(20, min(m.width-4, theme.MaxContentWidth))
		r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
		if err != nil {
			return "  " + text + "\n"
		}
		m.renderer = r
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return "  " + text + "\n"
	}
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// Run starts the chat program on the terminal and blocks until it exits.
func Run(deps Deps) error {
	_, err := tea.NewProgram(New(deps), tea.WithAltScreen()).Run()
	return err
}
