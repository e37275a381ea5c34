package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/metcalfc/dubco/api"
)

type rmOptions struct {
	domain string
	force  bool
	file   string
}

func newRmCmd(a *app) *cobra.Command {
	var opts rmOptions
	cmd := &cobra.Command{
		Use:   "rm [key|id]...",
		Short: "Delete short links",
		Long: `Delete short links by link ID, by key (with --domain) or by external ID.

IDs starting with clx, link_ or ext_ are looked up directly; anything else is
tried as a key on --domain and then as an external ID.`,
		Example: `  dub rm my-link -d dub.sh
  dub rm clx1234567890 clx0987654321
  dub rm --file to-delete.txt --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			identifiers := append([]string(nil), args...)
			if opts.file != "" {
				fromFile, err := readIdentifiers(opts.file)
				if err != nil {
					return err
				}
				identifiers = append(identifiers, fromFile...)
			}
			if len(identifiers) == 0 {
				return invalidInput("no links specified. Provide keys/IDs or use --file")
			}
			return a.remove(cmd.Context(), identifiers, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.domain, "domain", "d", "", "domain for key lookup")
	flags.BoolVarP(&opts.force, "force", "f", false, "skip the confirmation prompt")
	flags.StringVar(&opts.file, "file", "", "file with link IDs or keys to delete, one per line")
	return cmd
}

// readIdentifiers returns the non-blank lines of path.
func readIdentifiers(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, invalidInput("file not found: %s", path)
		}
		return nil, withExit(exitInput, err)
	}
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			ids = append(ids, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, withExit(exitInput, fmt.Errorf("read %s: %w", path, err))
	}
	return ids, nil
}

func (a *app) remove(ctx context.Context, identifiers []string, opts rmOptions) error {
	s, err := a.authedSession(ctx, a.progress())
	if err != nil {
		return err
	}
	defer s.Close()

	fmt.Fprintln(a.stderr, "Looking up links...")
	var links []api.Link
	seen := make(map[string]bool)
	for _, id := range identifiers {
		link, err := s.client.ResolveLink(ctx, id, opts.domain)
		if err != nil {
			return err
		}
		if link == nil {
			lipgloss.Fprintln(a.stderr, styleYellow.Render("Warning: link not found: "+id))
			continue
		}
		if seen[link.ID] {
			continue
		}
		seen[link.ID] = true
		links = append(links, *link)
	}
	if len(links) == 0 {
		return fmt.Errorf("no links found to delete: %w", errLinkNotFound)
	}

	if !opts.force {
		ok, err := a.confirmDelete(links)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.stdout, "Aborted.")
			return nil
		}
	}

	if len(links) == 1 {
		deleted, err := s.client.DeleteLink(ctx, links[0].ID)
		if err != nil {
			return err
		}
		if !deleted {
			return withExit(exitFailure, fmt.Errorf("failed to delete %s: link no longer exists", links[0].ShortLink))
		}
		lipgloss.Fprintln(a.stdout, styleGreen.Render("Deleted: "+links[0].ShortLink))
		return nil
	}

	ids := make([]string, len(links))
	for i, l := range links {
		ids[i] = l.ID
	}
	fmt.Fprintf(a.stderr, "Deleting %d links...\n", len(ids))
	result := s.client.BulkDeleteLinks(ctx, ids)
	if result.Deleted > 0 {
		lipgloss.Fprintln(a.stdout, styleGreen.Render(fmt.Sprintf("Deleted %d links", result.Deleted)))
	}
	if err := result.Err(); err != nil {
		fmt.Fprintf(a.stderr, "\nFailed to delete %d links:\n", len(result.Failed))
		printItemErrors(a.stderr, result.Failed, previewLimit)
		return err
	}
	return nil
}

// confirmDelete lists the links about to go and asks the user to confirm.
func (a *app) confirmDelete(links []api.Link) (bool, error) {
	fmt.Fprintf(a.stderr, "\nAbout to delete %d link(s):\n", len(links))
	var clicks int
	for i, l := range links {
		clicks += l.Clicks
		if i < previewLimit {
			if l.Clicks > 0 {
				fmt.Fprintf(a.stderr, "  %s (%d clicks)\n", l.ShortLink, l.Clicks)
			} else {
				fmt.Fprintf(a.stderr, "  %s\n", l.ShortLink)
			}
		}
	}
	if len(links) > previewLimit {
		fmt.Fprintf(a.stderr, "  ... and %d more\n", len(links)-previewLimit)
	}
	if clicks > 0 {
		lipgloss.Fprintln(a.stderr, styleYellow.Render(fmt.Sprintf("\nWarning: these links have %d total clicks.", clicks)))
	}
	return a.confirm("\nContinue with deletion?")
}
