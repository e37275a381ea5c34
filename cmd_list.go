package main

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/metcalfc/dubco/api"
)

var listSorts = []string{"createdAt", "clicks", "updatedAt"}

type listOptions struct {
	domain string
	tags   []string
	search string
	limit  int
	format string
	sort   string
}

func newListCmd(a *app) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your short links",
		Example: `  dub list
  dub list -d dub.sh -n 100
  dub list -t marketing --format json
  dub list -s "campaign" --sort clicks
  dub list -o plain | head -5`,
		Args: inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !slices.Contains(outputFormats, opts.format) {
				return invalidInput("invalid format: %s. Use %s", opts.format, strings.Join(outputFormats, ", "))
			}
			if !slices.Contains(listSorts, opts.sort) {
				return invalidInput("invalid sort: %s. Use %s", opts.sort, strings.Join(listSorts, ", "))
			}
			if opts.limit < 1 {
				return invalidInput("--limit must be at least 1, got %d", opts.limit)
			}
			return a.list(cmd.Context(), opts)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.domain, "domain", "d", "", "filter by domain")
	fs.StringArrayVarP(&opts.tags, "tag", "t", nil, "filter by tag name (repeatable)")
	fs.StringVarP(&opts.search, "search", "s", "", "search in URLs and keys")
	fs.IntVarP(&opts.limit, "limit", "n", 50, "maximum number of links to show")
	fs.StringVarP(&opts.format, "format", "o", formatTable, "output format: "+strings.Join(outputFormats, ", "))
	fs.StringVar(&opts.sort, "sort", "createdAt", "sort by: "+strings.Join(listSorts, ", "))
	return cmd
}

func (a *app) list(ctx context.Context, opts listOptions) error {
	s, err := a.authedSession(ctx, a.progress())
	if err != nil {
		return err
	}
	defer s.Close()

	links, err := s.client.ListAllLinks(ctx, api.ListOptions{
		Domain:   opts.domain,
		TagNames: opts.tags,
		Search:   opts.search,
		Sort:     opts.sort,
	}, opts.limit)
	if err != nil {
		return err
	}

	if err := printLinks(a.stdout, links, opts.format); err != nil {
		return err
	}
	if opts.format == formatTable && len(links) > 0 {
		lipgloss.Fprintln(a.stdout, styleDim.Render(fmt.Sprintf("Showing %d links", len(links))))
	}
	return nil
}
