package main

import (
	"errors"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/metcalfc/dubco/tui"
)

func newTUICmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and manage links interactively",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			// Progress lines would corrupt the alternate screen.
			s, err := a.authedSession(ctx, tui.NoopDisplayer{})
			if err != nil {
				return err
			}
			defer s.Close()

			p := tea.NewProgram(tui.NewBrowser(ctx, s.client),
				tea.WithContext(ctx),
				tea.WithInput(a.stdin),
				tea.WithOutput(a.stdout),
			)
			if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return err
			}
			return ctx.Err()
		},
	}
}
