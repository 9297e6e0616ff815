// Package tui implements the interactive character browser.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
)

// ListController is the part of pagination.Controller the browser drives.
type ListController interface {
	LoadInitial() error
	LoadNextPageIfNeeded(pagination.ScrollPosition) bool
	Retry() bool
	Refresh() error
	SelectCharacter(index int) (marvel.Character, error)
	Snapshot() pagination.Snapshot
}

// Options configures the browser.
type Options struct {
	// Title shown above the list.
	Title string

	// Attribution returns the text the API asks to be displayed, if any.
	Attribution func() string
}

// statusMsg carries totals fetched off the update goroutine.
type statusMsg struct {
	total   int
	hasMore bool
}

// errMsg reports a controller call that failed outright.
type errMsg struct {
	err error
}

var (
	retryKey   = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "retry"))
	refreshKey = key.NewBinding(key.WithKeys("R", "ctrl+r"), key.WithHelp("R", "refresh"))
	openKey    = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details"))
	backKey    = key.NewBinding(key.WithKeys("esc", "backspace"), key.WithHelp("esc", "back"))
	quitKey    = key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))
)

// characterItem adapts marvel.Character to list.Item.
type characterItem struct {
	character marvel.Character
}

func (i characterItem) Title() string { return i.character.Name }

func (i characterItem) Description() string {
	desc := strings.TrimSpace(i.character.Description)
	if desc == "" {
		return fmt.Sprintf("#%d", i.character.ID)
	}
	return desc
}

func (i characterItem) FilterValue() string { return i.character.Name }

// Model is the Bubble Tea model of the browser.
type Model struct {
	ctrl   ListController
	bridge *Bridge
	opts   Options

	list    list.Model
	spinner spinner.Model

	loading       bool
	loadingOffset int
	err           error
	total         int
	hasMore       bool

	detail *marvel.Character

	width, height int
}

// New creates the browser model. bridge must be the controller's listener and navigator.
func New(ctrl ListController, bridge *Bridge, opts Options) Model {
	if opts.Title == "" {
		opts.Title = "Marvel Characters"
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = opts.Title
	l.Styles.Title = titleStyle
	l.Styles.HelpStyle = helpStyle
	l.Styles.PaginationStyle = helpStyle
	l.SetShowStatusBar(false)
	// Indices must match the controller's, so no filtering.
	l.SetFilteringEnabled(false)
	l.KeyMap.Quit.SetEnabled(false)
	l.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{openKey, retryKey, refreshKey} }
	l.AdditionalFullHelpKeys = func() []key.Binding { return []key.Binding{openKey, retryKey, refreshKey, quitKey} }

	sp := spinner.New()
	sp.Spinner = spinner.Line
	sp.Style = spinnerStyle

	return Model{
		ctrl:    ctrl,
		bridge:  bridge,
		opts:    opts,
		list:    l,
		spinner: sp,
	}
}

// Run starts the browser and blocks until the user quits.
func Run(ctrl ListController, bridge *Bridge, opts Options) error {
	defer bridge.Close()
	_, err := tea.NewProgram(New(ctrl, bridge, opts), tea.WithAltScreen()).Run()
	return err
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.bridge.wait(), m.loadInitial(), m.spinner.Tick)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.list.SetSize(msg.Width, max(msg.Height-2, 1))
		return m, nil

	case eventMsg:
		cmd := m.applyEvent(msg.event)
		return m, tea.Batch(cmd, m.bridge.wait())

	case characterMsg:
		c := msg.character
		m.detail = &c
		return m, m.bridge.wait()

	case statusMsg:
		m.total = msg.total
		m.hasMore = msg.hasMore
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detail != nil {
		switch {
		case key.Matches(msg, backKey):
			m.detail = nil
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, quitKey):
		return m, tea.Quit
	case key.Matches(msg, retryKey):
		if m.err == nil {
			return m, nil
		}
		m.err = nil
		return m, m.retry()
	case key.Matches(msg, refreshKey):
		m.err = nil
		return m, m.refresh()
	case key.Matches(msg, openKey):
		if len(m.list.Items()) == 0 {
			return m, nil
		}
		return m, m.selectCharacter(m.list.Index())
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, tea.Batch(cmd, m.loadNextIfNeeded())
}

// applyEvent mirrors a controller event into the list.
func (m *Model) applyEvent(e pagination.Event) tea.Cmd {
	switch e.Kind {
	case pagination.EventLoading:
		m.loading = true
		m.loadingOffset = e.Offset
		m.err = nil
		return m.spinner.Tick

	case pagination.EventInitial:
		m.loading = false
		m.err = nil
		items := make([]list.Item, len(e.Items))
		for i, c := range e.Items {
			items[i] = characterItem{character: c}
		}
		return tea.Batch(m.list.SetItems(items), m.status())

	case pagination.EventInserted:
		m.loading = false
		m.err = nil
		var cmds []tea.Cmd
		for i, idx := range e.Indices {
			if i >= len(e.Items) {
				break
			}
			cmds = append(cmds, m.list.InsertItem(idx, characterItem{character: e.Items[i]}))
		}
		cmds = append(cmds, m.status())
		return tea.Batch(cmds...)

	case pagination.EventFailed:
		m.loading = false
		m.err = e.Err
	}
	return nil
}

func (m Model) loadInitial() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.LoadInitial(); err != nil && !errors.Is(err, pagination.ErrAlreadyLoading) {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) loadNextIfNeeded() tea.Cmd {
	if m.loading || m.err != nil || len(m.list.Items()) == 0 {
		return nil
	}
	ctrl := m.ctrl
	pos := pagination.ItemPosition(m.list.Index(), len(m.list.Items()))
	return func() tea.Msg {
		ctrl.LoadNextPageIfNeeded(pos)
		return nil
	}
}

func (m Model) retry() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Retry()
		return nil
	}
}

func (m Model) refresh() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if err := ctrl.Refresh(); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

func (m Model) selectCharacter(index int) tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		if _, err := ctrl.SelectCharacter(index); err != nil {
			return errMsg{err: err}
		}
		return nil
	}
}

// status reads totals in a command so the update goroutine never waits on the controller.
func (m Model) status() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		snap := ctrl.Snapshot()
		return statusMsg{total: snap.Total, hasMore: snap.HasMore}
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.detail != nil {
		return m.detailView()
	}

	if len(m.list.Items()) == 0 {
		switch {
		case m.loading:
			return fmt.Sprintf("\n  %s Loading characters...\n", m.spinner.View())
		case m.err != nil:
			return fmt.Sprintf("\n  %s\n\n  %s\n",
				errorStyle.Render("Could not load characters: "+m.err.Error()),
				helpStyle.Render("r retry • q quit"))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, m.list.View(), m.footer())
}

func (m Model) footer() string {
	var status string
	switch {
	case m.loading && m.loadingOffset > 0:
		status = m.spinner.View() + " Loading more..."
	case m.err != nil:
		status = errorStyle.Render("Load failed: "+m.err.Error()) + " " + helpStyle.Render("(r to retry)")
	default:
		status = fmt.Sprintf("%s of %s characters",
			accentStyle.Render(humanize.Comma(int64(len(m.list.Items())))),
			humanize.Comma(int64(m.total)))
		if !m.hasMore && m.total > 0 {
			status += mutedStyle.Render(" (end)")
		}
	}

	if m.opts.Attribution != nil {
		if text := m.opts.Attribution(); text != "" {
			status += "  " + mutedStyle.Render(text)
		}
	}
	return status
}

func (m Model) detailView() string {
	c := m.detail

	desc := strings.TrimSpace(c.Description)
	if desc == "" {
		desc = mutedStyle.Render("No description available.")
	}

	modified := "unknown"
	if !c.Modified.IsZero() {
		modified = humanize.Time(c.Modified.Time)
	}

	lines := []string{
		titleStyle.Render(c.Name),
		"",
		labelStyle.Render("ID") + fmt.Sprintf("%d", c.ID),
		labelStyle.Render("Image") + c.Thumbnail.URL(),
		labelStyle.Render("Modified") + modified,
		"",
		desc,
	}

	body := strings.Join(lines, "\n")
	if m.width > 4 {
		body = lipgloss.NewStyle().Width(m.width - 4).Render(body)
	}
	return detailStyle.Render(body) + "\n" + helpStyle.Render("esc back • q quit")
}
