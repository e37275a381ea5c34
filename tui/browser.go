package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/table"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/metcalfc/dubco/api"
)

// BrowserLimit caps how many links the browser loads.
const BrowserLimit = 500

// LinkService is the part of the API client the browser needs.
type LinkService interface {
	ListAllLinks(ctx context.Context, opts api.ListOptions, limit int) ([]api.Link, error)
	UpdateLink(ctx context.Context, id string, req *api.UpdateLinkRequest) (*api.Link, error)
	DeleteLink(ctx context.Context, id string) (bool, error)
}

type browserMode int

const (
	modeBrowse browserMode = iota
	modeSearch
	modeEdit
	modeConfirmDelete
)

// Browser is the interactive links table behind `dub tui`.
type Browser struct {
	ctx   context.Context
	links LinkService

	table table.Model
	input textinput.Model
	mode  browserMode

	all      []api.Link
	shown    []api.Link
	archived bool // show archived links instead of active ones
	search   string
	loading  bool
	preview  bool
	pending  *api.Link // target of an edit or delete prompt

	status *statusLine
	width  int
	height int
}

var styleHelp = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

// NewBrowser creates a browser whose API calls run under ctx.
func NewBrowser(ctx context.Context, links LinkService) Browser {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Short Link", Width: 28},
			{Title: "Destination URL", Width: 50},
			{Title: "Tags", Width: 16},
			{Title: "Clicks", Width: 7},
			{Title: "Created", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(15),
		table.WithWidth(121),
	)
	in := textinput.New()
	in.CharLimit = 2048

	return Browser{
		ctx:     ctx,
		links:   links,
		table:   t,
		input:   in,
		loading: true,
	}
}

// Init loads the first page of links.
func (b Browser) Init() tea.Cmd {
	return b.load()
}

func (b Browser) load() tea.Cmd {
	ctx, svc := b.ctx, b.links
	opts := api.ListOptions{Search: b.search}
	return func() tea.Msg {
		links, err := svc.ListAllLinks(ctx, opts, BrowserLimit)
		return linksLoadedMsg{links: links, err: err}
	}
}

func (b Browser) remove(link api.Link) tea.Cmd {
	ctx, svc := b.ctx, b.links
	return func() tea.Msg {
		deleted, err := svc.DeleteLink(ctx, link.ID)
		return linkDeletedMsg{link: link, deleted: deleted, err: err}
	}
}

func (b Browser) update(id string, req *api.UpdateLinkRequest) tea.Cmd {
	ctx, svc := b.ctx, b.links
	return func() tea.Msg {
		link, err := svc.UpdateLink(ctx, id, req)
		return linkUpdatedMsg{link: link, err: err}
	}
}

// Update handles all incoming messages.
func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.table.SetWidth(msg.Width)
		b.table.SetHeight(max(msg.Height-8, 3))
		return b, nil

	case linksLoadedMsg:
		b.loading = false
		if msg.err != nil {
			b.setStatus(statusWarn, "Error: "+msg.err.Error())
			return b, nil
		}
		b.all = msg.links
		b.applyFilter()
		return b, nil

	case linkDeletedMsg:
		if msg.err != nil {
			b.setStatus(statusWarn, "Error: "+msg.err.Error())
			return b, nil
		}
		if msg.deleted {
			b.setStatus(statusOK, "Deleted "+msg.link.ShortLink)
		} else {
			b.setStatus(statusInfo, msg.link.ShortLink+" was already deleted")
		}
		return b.reload()

	case linkUpdatedMsg:
		if msg.err != nil {
			b.setStatus(statusWarn, "Error: "+msg.err.Error())
			return b, nil
		}
		b.setStatus(statusOK, "Updated "+msg.link.ShortLink)
		return b.reload()

	case tea.KeyPressMsg:
		switch b.mode {
		case modeSearch:
			return b.updateSearch(msg)
		case modeEdit:
			return b.updateEdit(msg)
		case modeConfirmDelete:
			return b.updateConfirm(msg)
		}
		return b.updateBrowse(msg)
	}

	var cmd tea.Cmd
	b.table, cmd = b.table.Update(msg)
	return b, cmd
}

func (b Browser) updateBrowse(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return b, tea.Quit
	case "r":
		return b.reload()
	case "a":
		b.archived = !b.archived
		b.applyFilter()
		return b, nil
	case "p":
		b.preview = !b.preview
		return b, nil
	case "/":
		b.mode = modeSearch
		b.input.Placeholder = "Search links..."
		b.input.SetValue(b.search)
		b.input.CursorEnd()
		return b, b.input.Focus()
	case "esc":
		if b.search == "" {
			return b, nil
		}
		b.search = ""
		return b.reload()
	case "d":
		if link := b.selected(); link != nil {
			b.pending = link
			b.mode = modeConfirmDelete
		}
		return b, nil
	case "e":
		link := b.selected()
		if link == nil {
			return b, nil
		}
		b.pending = link
		b.mode = modeEdit
		b.input.Placeholder = "Destination URL"
		b.input.SetValue(link.URL)
		b.input.CursorEnd()
		return b, b.input.Focus()
	}

	var cmd tea.Cmd
	b.table, cmd = b.table.Update(msg)
	return b, cmd
}

func (b Browser) updateSearch(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		b.search = strings.TrimSpace(b.input.Value())
		b.closeInput()
		return b.reload()
	case "esc":
		b.closeInput()
		return b, nil
	}
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return b, cmd
}

func (b Browser) updateEdit(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		link := b.pending
		dest := strings.TrimSpace(b.input.Value())
		b.closeInput()
		if link == nil || dest == "" || dest == link.URL {
			b.setStatus(statusInfo, "No changes made")
			return b, nil
		}
		return b, b.update(link.ID, &api.UpdateLinkRequest{URL: &dest})
	case "esc":
		b.closeInput()
		return b, nil
	}
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return b, cmd
}

func (b Browser) updateConfirm(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	link := b.pending
	switch msg.String() {
	case "y", "Y":
		b.mode = modeBrowse
		b.pending = nil
		if link == nil {
			return b, nil
		}
		return b, b.remove(*link)
	case "n", "N", "esc":
		b.mode = modeBrowse
		b.pending = nil
	}
	return b, nil
}

func (b Browser) reload() (tea.Model, tea.Cmd) {
	b.loading = true
	return b, b.load()
}

func (b *Browser) closeInput() {
	b.mode = modeBrowse
	b.pending = nil
	b.input.Blur()
	b.input.Reset()
}

func (b *Browser) setStatus(kind statusKind, text string) {
	b.status = &statusLine{kind: kind, text: text}
}

// applyFilter shows either the active or the archived links.
func (b *Browser) applyFilter() {
	b.shown = nil
	for _, l := range b.all {
		if l.Archived == b.archived {
			b.shown = append(b.shown, l)
		}
	}
	rows := make([]table.Row, 0, len(b.shown))
	for _, l := range b.shown {
		rows = append(rows, LinkRow(l))
	}
	b.table.SetRows(rows)
	if b.table.Cursor() < 0 && len(rows) > 0 {
		b.table.SetCursor(0)
	}
}

func (b Browser) selected() *api.Link {
	i := b.table.Cursor()
	if i < 0 || i >= len(b.shown) {
		return nil
	}
	link := b.shown[i]
	return &link
}

// View renders the browser.
func (b Browser) View() tea.View {
	var s strings.Builder

	title := "Links"
	if b.archived {
		title = "Archived links"
	}
	if b.search != "" {
		title += fmt.Sprintf(" matching %q", b.search)
	}
	s.WriteString(styleTitleBox.Render(title))
	s.WriteString("\n")

	if b.loading {
		s.WriteString(styleDim.Render("Loading..."))
		s.WriteString("\n")
	} else {
		s.WriteString(styleDim.Render(fmt.Sprintf("%d links", len(b.shown))))
		s.WriteString("\n")
	}
	s.WriteString(b.table.View())
	s.WriteString("\n")

	if b.preview {
		if link := b.selected(); link != nil {
			s.WriteString(linkDetail(*link))
		}
	}

	switch b.mode {
	case modeSearch, modeEdit:
		s.WriteString(b.input.View())
		s.WriteString("\n")
	case modeConfirmDelete:
		if b.pending != nil {
			s.WriteString(styleWarn.Render(fmt.Sprintf("Delete %s? (y/n)", b.pending.ShortLink)))
			s.WriteString("\n")
		}
	}

	if b.status != nil {
		switch b.status.kind {
		case statusOK:
			s.WriteString(styleOK.Render(b.status.text))
		case statusWarn:
			s.WriteString(styleErr.Render(b.status.text))
		default:
			s.WriteString(styleDim.Render(b.status.text))
		}
		s.WriteString("\n")
	}

	s.WriteString(styleHelp.Render("↑/↓ move • / search • e edit • d delete • a archived • p preview • r refresh • q quit"))

	v := tea.NewView(s.String())
	v.AltScreen = true
	return v
}

func linkDetail(l api.Link) string {
	var s strings.Builder
	fmt.Fprintf(&s, "%s %s\n", styleBold.Render("Short link:"), l.ShortLink)
	fmt.Fprintf(&s, "%s %s\n", styleBold.Render("Destination:"), l.URL)
	fmt.Fprintf(&s, "%s %d clicks, %d leads, %d sales\n", styleBold.Render("Stats:"), l.Clicks, l.Leads, l.Sales)
	if tags := l.TagNames(); len(tags) > 0 {
		fmt.Fprintf(&s, "%s %s\n", styleBold.Render("Tags:"), strings.Join(tags, ", "))
	}
	return styleLinkBox.Render(strings.TrimSuffix(s.String(), "\n")) + "\n"
}

// LinkRow formats a link as a table row: short link, destination, tags,
// clicks and creation date.
func LinkRow(l api.Link) []string {
	tags := "-"
	if names := l.TagNames(); len(names) > 0 {
		tags = strings.Join(names, ", ")
	}
	created := ""
	if t := l.Created(); !t.IsZero() {
		created = t.Format("2006-01-02")
	}
	return []string{l.ShortLink, Truncate(l.URL, 50), tags, strconv.Itoa(l.Clicks), created}
}

// Truncate shortens s to at most n runes, ending in "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
