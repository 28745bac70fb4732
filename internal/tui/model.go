// Package tui is the terminal reader: a feed pane, the selected feed's
// articles and the article under the cursor.
package tui

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/microcosm-cc/bluemonday"

	"github.com/matthewjhunter/bytebite"
)

// Engine is the part of *bytebite.Engine the reader drives.
type Engine interface {
	View(ctx context.Context) (*bytebite.View, error)
	NextFeed(ctx context.Context) error
	PrevFeed(ctx context.Context) error
	NextArticle(ctx context.Context) error
	PrevArticle(ctx context.Context) error
	AddFeed(ctx context.Context, line string) (bytebite.Feed, *bytebite.RefreshTask, error)
	RemoveSelectedFeed(ctx context.Context) error
	RefreshSelected(ctx context.Context) (*bytebite.RefreshTask, error)
	RefreshAll(ctx context.Context) ([]bytebite.RefreshOutcome, error)
}

type spinnerTickMsg struct{}

type refreshResultMsg struct {
	feedID int64
	result *bytebite.SyncResult
	err    error
}

type refreshAllMsg struct {
	outcomes []bytebite.RefreshOutcome
	err      error
}

type Model struct {
	ctx    context.Context
	engine Engine
	strip  *bluemonday.Policy

	view   *bytebite.View
	width  int
	height int

	input    textinput.Model
	adding   bool
	showHelp bool

	status        string
	pending       int
	spinnerIndex  int
	spinnerFrames []string
}

var (
	teaNewProgram = tea.NewProgram
	runProgram    = func(p *tea.Program) (tea.Model, error) { return p.Run() }
)

// Run starts the reader and blocks until the user quits. Syncs still running
// at that point belong to the engine; closing it cancels them.
func Run(ctx context.Context, engine Engine) error {
	program := teaNewProgram(NewModel(ctx, engine), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := runProgram(program)
	return err
}

func NewModel(ctx context.Context, engine Engine) Model {
	input := textinput.New()
	input.Placeholder = "category | name | url"
	input.CharLimit = 512
	input.Width = 60
	input.Prompt = "> "
	m := Model{
		ctx:           ctx,
		engine:        engine,
		strip:         bluemonday.StrictPolicy(),
		input:         input,
		spinnerFrames: []string{"|", "/", "-", "\\"},
	}
	m.reload()
	return m
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(time.Time) tea.Msg {
		return spinnerTickMsg{}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case spinnerTickMsg:
		m.spinnerIndex = (m.spinnerIndex + 1) % len(m.spinnerFrames)
		return m, tick()
	case refreshResultMsg:
		m.pending--
		switch {
		case msg.err != nil:
			m.status = fmt.Sprintf("Refresh of feed %d failed: %v", msg.feedID, msg.err)
		case msg.result.NotModified:
			m.status = fmt.Sprintf("Feed %d not modified", msg.feedID)
		default:
			m.status = fmt.Sprintf("Feed %d: %d new article(s)", msg.feedID, len(msg.result.Added))
		}
		m.reload()
	case refreshAllMsg:
		m.pending--
		m.status = summarizeOutcomes(msg.outcomes, msg.err)
		m.reload()
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.showHelp {
		if key == "?" || key == "esc" || key == "q" {
			m.showHelp = false
		}
		return m, nil
	}
	if m.adding {
		switch key {
		case "esc":
			m.adding = false
			m.input.Blur()
			m.input.SetValue("")
			return m, nil
		case "enter":
			return m.commitAdd()
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	var err error
	switch key {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "?":
		m.showHelp = true
		return m, nil
	case "tab", "l", "right":
		err = m.engine.NextFeed(m.ctx)
	case "shift+tab", "h", "left":
		err = m.engine.PrevFeed(m.ctx)
	case "j", "down":
		err = m.engine.NextArticle(m.ctx)
	case "k", "up":
		err = m.engine.PrevArticle(m.ctx)
	case "a":
		m.adding = true
		m.input.SetValue("")
		return m, m.input.Focus()
	case "d":
		err = m.engine.RemoveSelectedFeed(m.ctx)
		if err == nil {
			m.status = "Feed removed"
		}
	case "r":
		task, rerr := m.engine.RefreshSelected(m.ctx)
		if rerr != nil {
			err = rerr
			break
		}
		m.pending++
		m.status = "Refreshing..."
		return m, waitCmd(m.ctx, task)
	case "R":
		m.pending++
		m.status = "Refreshing all feeds..."
		return m, refreshAllCmd(m.ctx, m.engine)
	default:
		return m, nil
	}
	if err != nil {
		m.status = errorStatus(err)
	}
	m.reload()
	return m, nil
}

func (m Model) commitAdd() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	m.adding = false
	m.input.Blur()
	m.input.SetValue("")

	feed, task, err := m.engine.AddFeed(m.ctx, line)
	if err != nil {
		m.status = errorStatus(err)
		return m, nil
	}
	m.pending++
	m.status = fmt.Sprintf("Added %s, fetching...", feed.Name)
	m.reload()
	return m, waitCmd(m.ctx, task)
}

func (m *Model) reload() {
	v, err := m.engine.View(m.ctx)
	if err != nil {
		m.status = errorStatus(err)
		return
	}
	m.view = v
}

func waitCmd(ctx context.Context, task *bytebite.RefreshTask) tea.Cmd {
	return func() tea.Msg {
		res, err := task.Wait(ctx)
		return refreshResultMsg{feedID: task.FeedID(), result: res, err: err}
	}
}

func refreshAllCmd(ctx context.Context, engine Engine) tea.Cmd {
	return func() tea.Msg {
		outcomes, err := engine.RefreshAll(ctx)
		return refreshAllMsg{outcomes: outcomes, err: err}
	}
}

func summarizeOutcomes(outcomes []bytebite.RefreshOutcome, err error) string {
	if err != nil {
		return "Refresh interrupted: " + err.Error()
	}
	added, failed := 0, 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			continue
		}
		added += len(o.Result.Added)
	}
	s := fmt.Sprintf("%d new article(s) from %d feed(s)", added, len(outcomes))
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	return s
}

func errorStatus(err error) string {
	switch {
	case errors.Is(err, bytebite.ErrNoSelection):
		return "No feed selected"
	case errors.Is(err, bytebite.ErrMalformedInput):
		return "Expected: category | name | url"
	case bytebite.IsRecoverable(err):
		return "Error: " + err.Error()
	}
	return "Storage error: " + err.Error()
}

func (m Model) plainText(s string) string {
	s = html.UnescapeString(m.strip.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}
