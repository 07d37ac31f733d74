package tui

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/artic-client/internal/testutil"
	"github.com/Sternrassler/artic-client/internal/viewer"
	"github.com/Sternrassler/artic-client/pkg/catalog"
	"github.com/Sternrassler/artic-client/pkg/pagination"
	"github.com/Sternrassler/artic-client/pkg/selection"
)

func newTestModel(t *testing.T, total int) (Model, *selection.MemoryStore) {
	t.Helper()

	records := testutil.Records(total)
	fetcher := pagination.PageFetcherFunc(func(_ context.Context, page int) (*catalog.Page, error) {
		resp := testutil.BuildResponse(records, page, 12)
		if len(resp.Data) == 0 {
			return nil, catalog.ErrEndOfCatalog
		}
		return catalog.PageFromResponse(page, resp), nil
	})

	store := selection.NewMemoryStore()
	session := viewer.NewSession(fetcher, pagination.NewSelector(fetcher, pagination.DefaultConfig()), store)
	return New(context.Background(), session), store
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// typeKey applies a key without running its command; text input cursor
// commands wait for the blink interval.
func typeKey(m Model, msg tea.Msg) Model {
	updated, _ := m.Update(msg)
	return updated.(Model)
}

// send applies msg and returns the updated model with the message produced
// by the resulting command, if it is a plain command.
func send(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	updated, cmd := m.Update(msg)
	m = updated.(Model)
	if cmd == nil {
		return m, nil
	}
	return m, cmd()
}

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	v, err := m.session.Load(context.Background())
	require.NoError(t, err)
	m, _ = send(t, m, PageLoadedMsg{View: v})
	return m
}

func TestNew(t *testing.T) {
	m, _ := newTestModel(t, 30)

	assert.Equal(t, ViewStateLoading, m.state)
	assert.Empty(t, m.table.Rows())
	assert.NotNil(t, m.Init())
}

func TestModel_PageLoaded(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)

	assert.Equal(t, ViewStateList, m.state)
	require.Len(t, m.table.Rows(), 12)
	row := m.table.Rows()[0]
	assert.Equal(t, "[ ]", row[0])
	assert.Equal(t, "Artwork 1", row[1])
	assert.Equal(t, catalog.DefaultPlaceOfOrigin, row[2])
	assert.Equal(t, "-", row[5])
}

func TestModel_NextPage(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)

	m, msg := send(t, m, runes("n"))
	assert.Equal(t, ViewStateLoading, m.state)
	require.IsType(t, PageLoadedMsg{}, msg)

	m, _ = send(t, m, msg)
	assert.Equal(t, 1, m.page.Cursor)
	assert.Equal(t, "Artwork 13", m.table.Rows()[0][1])

	m, msg = send(t, m, tea.KeyMsg{Type: tea.KeyLeft})
	m, _ = send(t, m, msg)
	assert.Equal(t, 0, m.page.Cursor)
}

func TestModel_EndOfCatalog(t *testing.T) {
	m, _ := newTestModel(t, 10)
	m = loaded(t, m)

	m, msg := send(t, m, runes("n"))
	m, _ = send(t, m, msg)

	assert.Empty(t, m.table.Rows())
	assert.Equal(t, "No more artworks", m.status)
}

func TestModel_ToggleRow(t *testing.T) {
	m, store := newTestModel(t, 30)
	m = loaded(t, m)

	m, msg := send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	require.IsType(t, SelectionChangedMsg{}, msg)
	m, _ = send(t, m, msg)

	assert.Equal(t, "[x]", m.table.Rows()[0][0])
	ids, _ := store.Get(context.Background())
	assert.Equal(t, []int{1}, ids)

	m, msg = send(t, m, tea.KeyMsg{Type: tea.KeySpace})
	m, _ = send(t, m, msg)
	assert.Equal(t, "[ ]", m.table.Rows()[0][0])
}

func TestModel_SelectFirstN(t *testing.T) {
	m, store := newTestModel(t, 100)
	m = loaded(t, m)

	m, _ = send(t, m, runes("s"))
	assert.Equal(t, ViewStatePrompt, m.state)

	m = typeKey(m, runes("3"))
	m = typeKey(m, runes("0"))
	m, msg := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, ViewStateSelecting, m.state)
	require.IsType(t, SelectionDoneMsg{}, msg)

	m, _ = send(t, m, msg)
	assert.Equal(t, ViewStateList, m.state)
	assert.Len(t, m.selected, 30)
	assert.Equal(t, "Selected 30 artworks", m.status)

	ids, _ := store.Get(context.Background())
	assert.Len(t, ids, 30)
	for _, row := range m.table.Rows() {
		assert.Equal(t, "[x]", row[0])
	}
}

func TestModel_SelectInvalidInputIsNoOp(t *testing.T) {
	m, store := newTestModel(t, 100)
	m = loaded(t, m)
	require.NoError(t, store.Set(context.Background(), []int{99}))

	m, _ = send(t, m, runes("s"))
	m = typeKey(m, runes("x"))
	m, msg := send(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	assert.Equal(t, ViewStateList, m.state)
	assert.Nil(t, msg)
	ids, _ := store.Get(context.Background())
	assert.Equal(t, []int{99}, ids)
}

func TestModel_PromptCancel(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)

	m, _ = send(t, m, runes("s"))
	m, msg := send(t, m, tea.KeyMsg{Type: tea.KeyEscape})

	assert.Equal(t, ViewStateList, m.state)
	assert.Nil(t, msg)
}

func TestModel_NavigationDisabledWhileSelecting(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)
	m.state = ViewStateSelecting

	m, msg := send(t, m, runes("n"))

	assert.Nil(t, msg)
	assert.Equal(t, ViewStateSelecting, m.state)
	assert.Contains(t, m.status, "disabled")
}

func TestModel_ToggleDisabledWhileSelecting(t *testing.T) {
	m, store := newTestModel(t, 30)
	m = loaded(t, m)
	m.state = ViewStateSelecting

	m, msg := send(t, m, tea.KeyMsg{Type: tea.KeySpace})

	assert.Nil(t, msg)
	assert.Equal(t, "[ ]", m.table.Rows()[0][0])
	assert.Contains(t, m.status, "disabled while selecting")
	ids, _ := store.Get(context.Background())
	assert.Empty(t, ids)
}

func TestModel_BusyToggleKeepsRows(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)

	m, _ = send(t, m, SelectionChangedMsg{Err: viewer.ErrBusy})

	assert.Equal(t, "[ ]", m.table.Rows()[0][0])
	assert.Contains(t, m.status, "disabled while selecting")
}

func TestModel_SelectionNotSaved(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)
	m.state = ViewStateSelecting

	m, _ = send(t, m, SelectionDoneMsg{
		Result: &pagination.Result{IDs: []int{1, 2, 3}},
		Err:    fmt.Errorf("%w: redis down", pagination.ErrPublish),
	})

	assert.Equal(t, ViewStateList, m.state)
	assert.Empty(t, m.selected)
	assert.Contains(t, m.status, "Could not save the selection")
}

func TestModel_BusyLoadReturnsToList(t *testing.T) {
	m, _ := newTestModel(t, 30)

	m, _ = send(t, m, PageLoadedMsg{Err: viewer.ErrBusy})

	assert.Equal(t, ViewStateList, m.state)
	assert.Contains(t, m.status, "disabled while selecting")
}

func TestModel_Quit(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)

	updated, cmd := m.Update(runes("q"))

	assert.Equal(t, ViewStateQuitting, updated.(Model).state)
	assert.NotNil(t, cmd)
	assert.Empty(t, updated.View())
}

func TestModel_ViewShowsStatus(t *testing.T) {
	m, _ := newTestModel(t, 30)
	m = loaded(t, m)
	m.status = "Selected 3 artworks"

	out := m.View()
	assert.Contains(t, out, "Artworks, page 1")
	assert.Contains(t, out, "Selected 3 artworks")
	assert.Contains(t, out, "Artwork 1")
}

func TestYearAndOneLine(t *testing.T) {
	v := 1889
	assert.Equal(t, "1889", year(&v))
	assert.Equal(t, "-", year(nil))
	assert.Equal(t, "Vincent van Gogh Dutch, 1853-1890", oneLine("Vincent van Gogh\nDutch, 1853-1890"))
}
