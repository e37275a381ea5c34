package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"

	"github.com/metcalfc/dubco/api"
	"github.com/metcalfc/dubco/importer"
	"github.com/metcalfc/dubco/tui"
)

// Output formats accepted by `dub list`.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
	formatPlain = "plain"
)

var outputFormats = []string{formatTable, formatJSON, formatCSV, formatPlain}

var (
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99")).Padding(0, 1)
	styleCell   = lipgloss.NewStyle().Padding(0, 1)
	styleBorder = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	styleGreen  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleYellow = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	styleDim    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	styleBold   = lipgloss.NewStyle().Bold(true)
)

// printLinks renders links to w in format.
func printLinks(w io.Writer, links []api.Link, format string) error {
	switch format {
	case formatJSON:
		return writeLinksJSON(w, links)
	case formatCSV:
		return writeLinksCSV(w, links)
	case formatPlain:
		for _, l := range links {
			if _, err := fmt.Fprintln(w, l.ShortLink); err != nil {
				return err
			}
		}
		return nil
	case formatTable:
		if len(links) == 0 {
			_, err := lipgloss.Fprintln(w, styleDim.Render("No links found."))
			return err
		}
		_, err := lipgloss.Fprintln(w, linksTable(links))
		return err
	}
	return invalidInput("invalid format: %s. Use %s", format, strings.Join(outputFormats, ", "))
}

func linksTable(links []api.Link) *table.Table {
	rows := make([][]string, 0, len(links))
	for _, l := range links {
		rows = append(rows, tui.LinkRow(l))
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(styleBorder).
		Headers("Short Link", "Destination", "Tags", "Clicks", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return styleHeader
			case col == 3:
				return styleCell.Align(lipgloss.Right)
			}
			return styleCell
		})
}

func writeLinksJSON(w io.Writer, links []api.Link) error {
	if links == nil {
		links = []api.Link{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(links)
}

func writeLinksCSV(w io.Writer, links []api.Link) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"shortLink", "url", "key", "domain", "clicks", "tags", "createdAt"}); err != nil {
		return err
	}
	for _, l := range links {
		record := []string{
			l.ShortLink,
			l.URL,
			l.Key,
			l.Domain,
			strconv.Itoa(l.Clicks),
			strings.Join(l.TagNames(), ","),
			l.CreatedAt,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// printLinkCreated reports a newly created link.
func printLinkCreated(w io.Writer, l *api.Link) {
	lipgloss.Fprintf(w, "%s %s\n", styleGreen.Render("Created:"), l.ShortLink)
	lipgloss.Fprintf(w, "  %s %s\n", styleDim.Render("Destination:"), tui.Truncate(l.URL, 60))
	if tags := l.TagNames(); len(tags) > 0 {
		lipgloss.Fprintf(w, "  %s %s\n", styleDim.Render("Tags:"), strings.Join(tags, ", "))
	}
}

// printLinkStats renders the metrics and metadata of one link.
func printLinkStats(w io.Writer, l *api.Link) {
	lipgloss.Fprintln(w, styleBold.Render(l.ShortLink))
	lipgloss.Fprintf(w, "%s %s\n\n", styleDim.Render("Destination:"), l.URL)

	metrics := [][]string{
		{"Clicks", strconv.Itoa(l.Clicks)},
		{"Leads", strconv.Itoa(l.Leads)},
		{"Sales", strconv.Itoa(l.Sales)},
	}
	if l.SaleAmount > 0 {
		metrics = append(metrics, []string{"Revenue", formatCents(l.SaleAmount)})
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		Rows(metrics...).
		StyleFunc(func(_, col int) lipgloss.Style {
			if col == 0 {
				return styleDim.PaddingRight(2)
			}
			return styleBold
		})
	lipgloss.Fprintln(w, t)
	fmt.Fprintln(w)

	if l.LastClicked != "" {
		lipgloss.Fprintf(w, "%s %s\n", styleDim.Render("Last clicked:"), l.LastClicked)
	}
	lipgloss.Fprintf(w, "%s %s\n", styleDim.Render("Created:"), l.CreatedAt)
	if tags := l.TagNames(); len(tags) > 0 {
		lipgloss.Fprintf(w, "%s %s\n", styleDim.Render("Tags:"), strings.Join(tags, ", "))
	}

	utm := l.UTM()
	var parts []string
	for _, name := range importer.UTMParams {
		if v, ok := utm[name]; ok {
			parts = append(parts, strings.TrimPrefix(name, "utm_")+"="+v)
		}
	}
	if len(parts) > 0 {
		lipgloss.Fprintf(w, "%s %s\n", styleDim.Render("UTM:"), strings.Join(parts, ", "))
	}
}

// formatCents renders an amount in cents as dollars.
func formatCents(cents int) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}

// printItemErrors lists up to limit failures, then a count of the rest.
func printItemErrors(w io.Writer, failed []api.ItemError, limit int) {
	for i, f := range failed {
		if i == limit {
			fmt.Fprintf(w, "  ... and %d more errors\n", len(failed)-limit)
			return
		}
		fmt.Fprintf(w, "  %v\n", f)
	}
}
