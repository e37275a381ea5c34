package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the exit status.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	return newApp(stdin, stdout, stderr).execute(ctx, args)
}

func (a *app) execute(ctx context.Context, args []string) int {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	cmd.SetIn(a.stdin)
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	reportError(a.stderr, err)
	return exitCode(err)
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dub",
		Short:         "CLI for managing Dub.co short links",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return withExit(exitInput, err)
	})

	fs := cmd.PersistentFlags()
	fs.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default $DUBCO_CONFIG_DIR or ~/.config/dubco)")
	fs.StringVar(&a.flags.apiURL, "api-url", "", "API base URL (default $DUBCO_API_URL or https://api.dub.co)")
	fs.BoolVar(&a.flags.verbose, "verbose", false, "enable debug logging (or set DUBCO_DEBUG=1)")

	cmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newAddCmd(a),
		newListCmd(a),
		newRmCmd(a),
		newStatsCmd(a),
		newTUICmd(a),
	)
	return cmd
}
