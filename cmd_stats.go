package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatsCmd(a *app) *cobra.Command {
	var domain string
	cmd := &cobra.Command{
		Use:   "stats <key|id>",
		Short: "Show statistics for a link",
		Example: `  dub stats my-link -d dub.sh
  dub stats clx1234567890`,
		Args: inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.authedSession(ctx, a.progress())
			if err != nil {
				return err
			}
			defer s.Close()

			link, err := s.client.ResolveLink(ctx, args[0], domain)
			if err != nil {
				return err
			}
			if link == nil {
				if domain == "" {
					fmt.Fprintln(a.stderr, "Tip: try specifying --domain if looking up by key")
				}
				return fmt.Errorf("%s: %w", args[0], errLinkNotFound)
			}
			printLinkStats(a.stdout, link)
			return nil
		},
	}
	cmd.Flags().StringVarP(&domain, "domain", "d", "", "domain for key lookup")
	return cmd
}
