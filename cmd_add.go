package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/metcalfc/dubco/api"
	"github.com/metcalfc/dubco/importer"
	"github.com/metcalfc/dubco/tui"
)

// previewLimit caps how many rows a dry run or summary prints.
const previewLimit = 10

type addOptions struct {
	file   string
	key    string
	domain string
	tags   []string
	utm    map[string]*string
	dryRun bool
}

func newAddCmd(a *app) *cobra.Command {
	opts := addOptions{utm: make(map[string]*string, len(importer.UTMParams))}
	cmd := &cobra.Command{
		Use:   "add [url]",
		Short: "Create a short link, or many from a CSV file",
		Example: `  dub add https://example.com
  dub add https://example.com -k my-link -d dub.sh
  dub add https://example.com --utm-source twitter --utm-campaign launch
  dub add -f links.csv --dry-run`,
		Args: inputArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch {
			case opts.file != "" && len(args) > 0:
				return invalidInput("pass either a URL or --file, not both")
			case opts.file != "":
				return a.addFromFile(cmd.Context(), opts)
			case len(args) == 1:
				return a.addOne(cmd.Context(), args[0], opts)
			}
			return invalidInput("either a URL or --file is required")
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "CSV file for bulk creation")
	flags.StringVarP(&opts.key, "key", "k", "", "custom short link slug")
	flags.StringVarP(&opts.domain, "domain", "d", "", "short link domain")
	flags.StringArrayVarP(&opts.tags, "tag", "t", nil, "tag to apply (repeatable)")
	for _, name := range importer.UTMParams {
		flag := strings.ReplaceAll(name, "_", "-")
		opts.utm[name] = flags.String(flag, "", "UTM "+strings.TrimPrefix(name, "utm_")+" parameter")
	}
	flags.BoolVar(&opts.dryRun, "dry-run", false, "validate without creating links")
	return cmd
}

// buildCreateRequest moves utm_* parameters out of rawURL into the request,
// with the --utm-* flags taking precedence.
func buildCreateRequest(rawURL string, opts addOptions) (*api.CreateLinkRequest, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, invalidInput("invalid URL (must start with http:// or https://): %s", rawURL)
	}
	clean, fromURL, err := importer.ExtractUTM(rawURL)
	if err != nil {
		return nil, invalidInput("invalid URL %s: %v", rawURL, err)
	}

	overrides := make(map[string]string, len(opts.utm))
	for name, v := range opts.utm {
		if v != nil {
			overrides[name] = strings.TrimSpace(*v)
		}
	}

	req := &api.CreateLinkRequest{
		URL:      clean,
		Key:      opts.key,
		Domain:   opts.domain,
		TagNames: opts.tags,
	}
	for name, v := range importer.MergeUTM(fromURL, overrides) {
		req.SetUTM(name, v)
	}
	return req, nil
}

func (a *app) addOne(ctx context.Context, rawURL string, opts addOptions) error {
	req, err := buildCreateRequest(rawURL, opts)
	if err != nil {
		return err
	}

	if opts.dryRun {
		lipgloss.Fprintln(a.stdout, styleYellow.Render("Dry run - would create:"))
		fmt.Fprintf(a.stdout, "  URL: %s\n", req.URL)
		if req.Key != "" {
			fmt.Fprintf(a.stdout, "  Key: %s\n", req.Key)
		}
		if req.Domain != "" {
			fmt.Fprintf(a.stdout, "  Domain: %s\n", req.Domain)
		}
		if len(req.TagNames) > 0 {
			fmt.Fprintf(a.stdout, "  Tags: %s\n", strings.Join(req.TagNames, ", "))
		}
		for _, name := range importer.UTMParams {
			if v := requestUTM(req, name); v != "" {
				fmt.Fprintf(a.stdout, "  %s: %s\n", name, v)
			}
		}
		return nil
	}

	s, err := a.authedSession(ctx, a.progress())
	if err != nil {
		return err
	}
	defer s.Close()

	link, err := s.client.CreateLink(ctx, req)
	if err != nil {
		return err
	}
	printLinkCreated(a.stdout, link)
	return nil
}

func requestUTM(req *api.CreateLinkRequest, name string) string {
	switch name {
	case "utm_source":
		return req.UTMSource
	case "utm_medium":
		return req.UTMMedium
	case "utm_campaign":
		return req.UTMCampaign
	case "utm_term":
		return req.UTMTerm
	case "utm_content":
		return req.UTMContent
	}
	return ""
}

func (a *app) addFromFile(ctx context.Context, opts addOptions) error {
	res, err := importer.ParseFile(opts.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return invalidInput("file not found: %s", opts.file)
		}
		return withExit(exitInput, err)
	}

	if invalid := res.Invalid(); len(invalid) > 0 {
		fmt.Fprintln(a.stderr, "Validation errors:")
		for _, row := range invalid {
			for _, msg := range row.Errors {
				fmt.Fprintf(a.stderr, "  Row %d: %s\n", row.Line, msg)
			}
		}
		fmt.Fprintln(a.stderr)
	}

	reqs, lines := res.Requests()
	if len(reqs) == 0 {
		return invalidInput("no valid rows to process")
	}
	fmt.Fprintf(a.stderr, "Found %d valid rows\n", len(reqs))
	if skipped := len(res.Rows) - len(reqs); skipped > 0 {
		lipgloss.Fprintln(a.stderr, styleYellow.Render(fmt.Sprintf("Skipping %d invalid rows", skipped)))
	}

	if opts.dryRun {
		lipgloss.Fprintln(a.stdout, styleYellow.Render("Dry run - would create:"))
		for i, req := range reqs {
			if i == previewLimit {
				fmt.Fprintf(a.stdout, "  ... and %d more\n", len(reqs)-previewLimit)
				break
			}
			fmt.Fprintf(a.stdout, "  Row %d: %s\n", lines[i], req.URL)
			if req.Key != "" {
				fmt.Fprintf(a.stdout, "    Key: %s\n", req.Key)
			}
		}
		return nil
	}

	s, err := a.authedSession(ctx, a.progress())
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintf(a.stderr, "Creating %d links...\n", len(reqs))
	result := s.client.BulkCreateLinks(ctx, reqs)
	failed := importer.RemapRows(result.Failed, lines)

	if n := len(result.Succeeded); n > 0 {
		lipgloss.Fprintln(a.stdout, styleGreen.Render(fmt.Sprintf("Created %d links", n)))
		for i, link := range result.Succeeded {
			if i == 5 {
				fmt.Fprintf(a.stdout, "  ... and %d more\n", n-5)
				break
			}
			fmt.Fprintf(a.stdout, "  %s -> %s\n", link.ShortLink, tui.Truncate(link.URL, 50))
		}
	}
	if len(failed) > 0 {
		fmt.Fprintf(a.stderr, "\nFailed to create %d links:\n", len(failed))
		printItemErrors(a.stderr, failed, previewLimit)
		return &api.PartialFailureError{Succeeded: len(result.Succeeded), Failed: failed}
	}
	return nil
}
