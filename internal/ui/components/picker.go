// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/agentlz/agentlz-tui/internal/ui/styles"
	"github.com/agentlz/agentlz-tui/internal/util"
)

// =============================================================================
// PICKER COMPONENT - Searchable list drawer for agents and past conversations
// =============================================================================

// PickerItem is one selectable row.
type PickerItem struct {
	ID     string
	Title  string
	Detail string
	// Current marks the row matching the open agent or conversation.
	Current bool
}

// PickerEvent tells the owner what a key press asked for.
type PickerEvent int

const (
	PickerNone PickerEvent = iota
	// PickerSelect chooses the highlighted item.
	PickerSelect
	// PickerClose dismisses the drawer.
	PickerClose
	// PickerSearch asks for a new search with Query.
	PickerSearch
	// PickerMore asks for the next page; the cursor reached the last row.
	PickerMore
)

// Picker is a drawer with a search box over a list. Enter searches when the
// query changed since the last search and selects otherwise.
type Picker struct {
	title    string
	input    textinput.Model
	items    []PickerItem
	cursor   int
	searched string
	loading  bool
	hasMore  bool
	total    int
	err      string
	width    int
	height   int
	theme    *styles.Theme
}

// NewPicker creates a picker.
func NewPicker(theme *styles.Theme, title, placeholder string) *Picker {
	ti := textinput.New()
	ti.Prompt = "/ "
	ti.Placeholder = placeholder
	ti.CharLimit = 100

	return &Picker{
		title:  title,
		input:  ti,
		width:  60,
		height: 16,
		theme:  theme,
	}
}

// SetSize sets the outer size of the drawer.
func (p *Picker) SetSize(width, height int) {
	p.width = width
	p.height = height
	p.input.Width = width - 8
}

// Open focuses the search box and marks a search as running.
func (p *Picker) Open() tea.Cmd {
	p.err = ""
	p.loading = true
	return p.input.Focus()
}

// Close blurs the search box.
func (p *Picker) Close() {
	p.input.Blur()
}

// Query returns the trimmed search text.
func (p *Picker) Query() string {
	return strings.TrimSpace(p.input.Value())
}

// SetItems replaces the list. reset moves the cursor to the first row,
// otherwise it is kept in range.
func (p *Picker) SetItems(items []PickerItem, total int, hasMore, reset bool) {
	p.items = items
	p.total = total
	p.hasMore = hasMore
	p.loading = false
	p.err = ""
	if reset || p.cursor >= len(items) {
		p.cursor = 0
	}
	if reset {
		for i, it := range items {
			if it.Current {
				p.cursor = i
				break
			}
		}
	}
}

// SetLoading shows the loading footer.
func (p *Picker) SetLoading(loading bool) {
	p.loading = loading
}

// SetError shows err in the footer and ends loading.
func (p *Picker) SetError(err string) {
	p.err = err
	p.loading = false
}

// Loading reports whether a fetch is running.
func (p *Picker) Loading() bool {
	return p.loading
}

// Selected returns the highlighted item.
func (p *Picker) Selected() (PickerItem, bool) {
	if p.cursor < 0 || p.cursor >= len(p.items) {
		return PickerItem{}, false
	}
	return p.items[p.cursor], true
}

// Update handles a key press.
func (p *Picker) Update(msg tea.Msg) (PickerEvent, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		var cmd tea.Cmd
		p.input, cmd = p.input.Update(msg)
		return PickerNone, cmd
	}

	switch key.String() {
	case "esc":
		return PickerClose, nil
	case "up", "ctrl+p":
		if p.cursor > 0 {
			p.cursor--
		}
		return PickerNone, nil
	case "down", "ctrl+n":
		if p.cursor < len(p.items)-1 {
			p.cursor++
		}
		return p.bottomEvent(), nil
	case "pgdown":
		p.cursor = minInt(len(p.items)-1, p.cursor+p.listHeight())
		if p.cursor < 0 {
			p.cursor = 0
		}
		return p.bottomEvent(), nil
	case "pgup":
		p.cursor = maxInt(0, p.cursor-p.listHeight())
		return PickerNone, nil
	case "enter":
		if p.Query() != p.searched {
			p.searched = p.Query()
			p.loading = true
			return PickerSearch, nil
		}
		if _, ok := p.Selected(); ok {
			return PickerSelect, nil
		}
		return PickerNone, nil
	}

	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return PickerNone, cmd
}

// bottomEvent asks for more rows when the cursor sits on the last one.
func (p *Picker) bottomEvent() PickerEvent {
	if p.hasMore && !p.loading && len(p.items) > 0 && p.cursor == len(p.items)-1 {
		p.loading = true
		return PickerMore
	}
	return PickerNone
}

// MarkSearched records query as the last search, e.g. for the initial
// listing opened with an empty box.
func (p *Picker) MarkSearched(query string) {
	p.searched = strings.TrimSpace(query)
}

func (p *Picker) listHeight() int {
	// Title, margin, input, blank line, footer and the border.
	h := p.height - 7
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the drawer.
func (p *Picker) View() string {
	inner := p.width - 4
	if inner < 10 {
		inner = 10
	}

	var b strings.Builder
	b.WriteString(p.theme.DrawerTitle.Render(p.title))
	b.WriteString("\n")
	b.WriteString(p.input.View())
	b.WriteString("\n\n")

	rows := p.listHeight()
	start := 0
	if p.cursor >= rows {
		start = p.cursor - rows + 1
	}
	end := minInt(len(p.items), start+rows)

	if len(p.items) == 0 && !p.loading {
		b.WriteString(p.theme.Muted.Render("Nothing found."))
		b.WriteString("\n")
	}
	for i := start; i < end; i++ {
		b.WriteString(p.renderItem(p.items[i], i == p.cursor, inner))
		b.WriteString("\n")
	}

	b.WriteString(p.renderFooter())
	return p.theme.Drawer.Width(p.width - 2).Render(b.String())
}

func (p *Picker) renderItem(it PickerItem, selected bool, width int) string {
	marker := "  "
	if it.Current {
		marker = "* "
	}

	detail := ""
	if it.Detail != "" {
		detail = "  " + it.Detail
	}
	titleWidth := width - len(marker) - util.StringWidth(detail)
	if titleWidth < 8 {
		titleWidth = width - len(marker)
		detail = ""
	}
	title := util.PadRight(util.TruncateWidth(util.SingleLine(it.Title), titleWidth), titleWidth)

	if selected {
		return p.theme.DrawerSelected.Render(marker + title + detail)
	}
	return p.theme.DrawerItem.Render(marker+title) + p.theme.DrawerMeta.Render(detail)
}

func (p *Picker) renderFooter() string {
	switch {
	case p.err != "":
		return p.theme.ErrorText.Render(p.err)
	case p.loading:
		return p.theme.Muted.Render("loading...")
	case p.hasMore:
		return p.theme.Muted.Render(fmt.Sprintf("%d of %d, scroll down for more", len(p.items), p.total))
	default:
		return p.theme.Muted.Render(fmt.Sprintf("%d shown  enter select  esc close", len(p.items)))
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
