package app

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/FranksOps/dorker/internal/config"
	"github.com/FranksOps/dorker/internal/console"
)

// NewRootCmd returns the dorker command. The exit code of the run is stored
// in *code.
func NewRootCmd(stdout, stderr io.Writer, code *int) *cobra.Command {
	v := config.NewViper()

	cmd := &cobra.Command{
		Use:   "dorker",
		Short: "Run search-engine dork queries and append the results to a file",
		Long: "dorker issues search-engine queries (\"dorks\") one at a time, through HTML scraping " +
			"or the JSON search API, and appends the result links to a flat file.",
		Example: "  dorker -q 'site:example.com filetype:pdf' -r 5\n" +
			"  dorker -df dorks.txt -i -o results.txt\n" +
			"  dorker -q 'inurl:admin' -a $API_KEY -seid $ENGINE_ID",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				console.New(stdout, stderr, false).Errorf("%v", err)
				*code = ExitFailure
				return nil
			}

			logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
			*code = Run(cmd.Context(), cfg, Env{
				Console: console.New(stdout, stderr, cfg.NoColor),
				Logger:  logger,
				Summary: stderr,
			})
			return nil
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	config.RegisterFlags(cmd.Flags())
	cmd.Flags().SortFlags = false
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		panic(err)
	}

	return cmd
}

// Execute runs the command line args and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	code := ExitOK
	cmd := NewRootCmd(stdout, stderr, &code)
	cmd.SetArgs(config.NormalizeArgs(args))

	if err := cmd.ExecuteContext(ctx); err != nil {
		console.New(stdout, stderr, false).Errorf("%v", err)
		return ExitFailure
	}
	return code
}
