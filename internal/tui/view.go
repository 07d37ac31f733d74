package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/Sternrassler/artic-client/pkg/catalog"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#E2B714"))

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")).Italic(true)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	tableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#4B5563"))

	tableSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#111827")).
				Background(lipgloss.Color("#E2B714"))
)

const helpText = "n/→ next • p/← prev • space toggle • s select first N • q quit"

// View renders the model (Bubble Tea interface).
func (m Model) View() string {
	if m.state == ViewStateQuitting {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("Artworks, page %d", m.page.Cursor+1)
	if m.state == ViewStateLoading {
		header += " (loading)"
	}
	b.WriteString(titleStyle.Render(header))
	b.WriteString(fmt.Sprintf("   %d selected\n\n", len(m.selected)))

	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.state == ViewStatePrompt {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render(helpText))

	return b.String()
}

func (m Model) buildTable() table.Model {
	// Fixed columns take 4+8+8 plus padding; text columns share the rest.
	text := max((m.width-30)/4, 10)
	columns := []table.Column{
		{Title: "Sel", Width: 4},
		{Title: "Title", Width: text},
		{Title: "Place of Origin", Width: text * 2 / 3},
		{Title: "Artist", Width: text + text/3},
		{Title: "Inscriptions", Width: text},
		{Title: "Start", Width: 8},
		{Title: "End", Width: 8},
	}

	rows := make([]table.Row, 0, len(m.page.Items))
	for _, item := range m.page.Items {
		rows = append(rows, m.row(item))
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-chromeHeight, minHeight)),
	)

	s := table.DefaultStyles()
	s.Header = tableHeaderStyle
	s.Selected = tableSelectedStyle
	t.SetStyles(s)

	return t
}

func (m Model) row(item catalog.Item) table.Row {
	check := "[ ]"
	if m.selected[item.ID] {
		check = "[x]"
	}
	return table.Row{
		check,
		oneLine(item.Title),
		oneLine(item.PlaceOfOrigin),
		oneLine(item.ArtistDisplay),
		oneLine(item.Inscriptions),
		year(item.DateStart),
		year(item.DateEnd),
	}
}

func year(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

// oneLine folds multi-line API text (artist_display uses newlines) into one row.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
