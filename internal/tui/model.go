// Package tui is the terminal data table for browsing the catalog one page
// at a time and selecting records.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sternrassler/artic-client/internal/viewer"
	"github.com/Sternrassler/artic-client/pkg/catalog"
	"github.com/Sternrassler/artic-client/pkg/pagination"
)

// ViewState is the screen the model shows.
type ViewState int

const (
	ViewStateLoading ViewState = iota
	ViewStateList
	ViewStatePrompt
	ViewStateSelecting
	ViewStateQuitting
)

const (
	keyQuit      = "q"
	keyCtrlC     = "ctrl+c"
	keyNext      = "n"
	keyRight     = "right"
	keyPrev      = "p"
	keyLeft      = "left"
	keySpace     = " "
	keySpaceName = "space"
	keySel       = "s"
	keyEnter     = "enter"
	keyEsc       = "esc"

	defaultWidth  = 120
	defaultHeight = 24
	chromeHeight  = 6
	minHeight     = 3
)

// PageLoadedMsg carries the result of a page fetch.
type PageLoadedMsg struct {
	View viewer.View
	Err  error
}

// SelectionDoneMsg carries the result of a select-first-N run.
type SelectionDoneMsg struct {
	Result *pagination.Result
	Err    error
}

// SelectionChangedMsg carries the selection after a change.
type SelectionChangedMsg struct {
	IDs []int
	Err error
}

// Model is the Bubble Tea model of the catalog browser.
//
//nolint:recvcheck // Bubble Tea requires value receivers for Init/Update/View.
type Model struct {
	ctx     context.Context
	session *viewer.Session

	state    ViewState
	page     viewer.View
	selected map[int]bool
	status   string

	table table.Model
	input textinput.Model

	width  int
	height int
}

// New creates a browser over session.
func New(ctx context.Context, session *viewer.Session) Model {
	input := textinput.New()
	input.Placeholder = "number of records"
	input.CharLimit = 6
	input.Width = 20
	input.Prompt = "Select first N: "

	m := Model{
		ctx:      ctx,
		session:  session,
		state:    ViewStateLoading,
		page:     session.View(),
		selected: map[int]bool{},
		input:    input,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	m.table = m.buildTable()
	return m
}

// Run starts the program and blocks until the user quits. Selection changes
// pushed by the session's store are shown as they happen.
func Run(ctx context.Context, session *viewer.Session) error {
	p := tea.NewProgram(New(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx))

	if unsubscribe, ok := session.Subscribe(func(ids []int) {
		p.Send(SelectionChangedMsg{IDs: ids})
	}); ok {
		defer unsubscribe()
	}

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init loads the first page and the stored selection.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(m.session.Load), m.selectionCmd())
}

// Update handles messages (Bubble Tea interface).
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table = m.buildTable()
		return m, nil

	case PageLoadedMsg:
		return m.handlePageLoaded(msg)

	case SelectionDoneMsg:
		return m.handleSelectionDone(msg)

	case SelectionChangedMsg:
		switch {
		case errors.Is(msg.Err, viewer.ErrBusy):
			m.status = "Selection changes are disabled while selecting"
			return m, nil
		case msg.Err != nil:
			m.status = "Selection error: " + msg.Err.Error()
			return m, nil
		}
		m.setSelected(msg.IDs)
		return m, nil
	}

	keyMsg, isKey := msg.(tea.KeyMsg)
	if isKey && keyMsg.String() == keyCtrlC {
		m.state = ViewStateQuitting
		return m, tea.Quit
	}

	switch m.state {
	case ViewStatePrompt:
		return m.handlePrompt(msg)
	case ViewStateList, ViewStateLoading, ViewStateSelecting:
		if isKey {
			return m.handleKey(keyMsg)
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m Model) handlePageLoaded(msg PageLoadedMsg) (tea.Model, tea.Cmd) {
	if errors.Is(msg.Err, viewer.ErrBusy) {
		if m.state == ViewStateLoading {
			m.state = ViewStateList
		}
		m.status = "Navigation is disabled while selecting"
		return m, nil
	}

	m.page = msg.View
	if m.state == ViewStateLoading {
		m.state = ViewStateList
	}
	switch {
	case msg.View.Err != nil:
		m.status = "Could not load page " + strconv.Itoa(msg.View.Cursor+1)
	case msg.View.End:
		m.status = "No more artworks"
	default:
		m.status = ""
	}
	m.table = m.buildTable()
	return m, nil
}

func (m Model) handleSelectionDone(msg SelectionDoneMsg) (tea.Model, tea.Cmd) {
	m.state = ViewStateList

	switch {
	case msg.Result == nil && msg.Err == nil:
		return m, nil
	case msg.Result == nil:
		m.status = "Selection failed: " + msg.Err.Error()
		return m, nil
	case errors.Is(msg.Err, pagination.ErrPublish):
		m.status = "Could not save the selection: " + msg.Err.Error()
		return m, nil
	}

	m.setSelected(msg.Result.IDs)
	switch {
	case errors.Is(msg.Err, pagination.ErrIncomplete):
		m.status = fmt.Sprintf("Selected %d artworks; stopped early after a failed page", len(msg.Result.IDs))
	case msg.Err != nil:
		m.status = "Selection error: " + msg.Err.Error()
	case msg.Result.Exhausted:
		m.status = fmt.Sprintf("Selected all %d artworks", len(msg.Result.IDs))
	default:
		m.status = fmt.Sprintf("Selected %d artworks", len(msg.Result.IDs))
	}
	return m, nil
}

func (m Model) handleKey(keyMsg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch keyMsg.String() {
	case keyQuit:
		m.state = ViewStateQuitting
		return m, tea.Quit

	case keyNext, keyRight, keyPrev, keyLeft:
		if m.state == ViewStateSelecting {
			m.status = "Navigation is disabled while selecting"
			return m, nil
		}
		move := m.session.Next
		if s := keyMsg.String(); s == keyPrev || s == keyLeft {
			move = m.session.Prev
		}
		m.state = ViewStateLoading
		return m, m.loadCmd(move)

	case keySpace, keySpaceName:
		if m.state == ViewStateSelecting {
			m.status = "Selection changes are disabled while selecting"
			return m, nil
		}
		if item, ok := m.currentItem(); ok {
			return m, m.toggleCmd(item.ID)
		}
		return m, nil

	case keySel:
		if m.state == ViewStateSelecting {
			return m, nil
		}
		m.state = ViewStatePrompt
		m.input.SetValue("")
		m.input.Focus()
		return m, textinput.Blink
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(keyMsg)
	return m, cmd
}

func (m Model) handlePrompt(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case keyEsc:
			m.state = ViewStateList
			m.input.Blur()
			return m, nil
		case keyEnter:
			m.input.Blur()
			n, ok := viewer.ParseCount(m.input.Value())
			if !ok {
				m.state = ViewStateList
				return m, nil
			}
			m.state = ViewStateSelecting
			m.status = fmt.Sprintf("Selecting the first %d artworks...", n)
			return m, m.selectCmd(n)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) currentItem() (catalog.Item, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.page.Items) {
		return catalog.Item{}, false
	}
	return m.page.Items[i], true
}

func (m *Model) setSelected(ids []int) {
	m.selected = make(map[int]bool, len(ids))
	for _, id := range ids {
		m.selected[id] = true
	}
	cursor := m.table.Cursor()
	m.table = m.buildTable()
	m.table.SetCursor(cursor)
}

func (m Model) loadCmd(fn func(context.Context) (viewer.View, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		v, err := fn(ctx)
		return PageLoadedMsg{View: v, Err: err}
	}
}

func (m Model) selectCmd(n int) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		res, err := session.SelectFirstN(ctx, n)
		return SelectionDoneMsg{Result: res, Err: err}
	}
}

func (m Model) toggleCmd(id int) tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		if err := session.Toggle(ctx, id); err != nil {
			return SelectionChangedMsg{Err: err}
		}
		ids, err := session.Selected(ctx)
		return SelectionChangedMsg{IDs: ids, Err: err}
	}
}

func (m Model) selectionCmd() tea.Cmd {
	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		ids, err := session.Selected(ctx)
		return SelectionChangedMsg{IDs: ids, Err: err}
	}
}
