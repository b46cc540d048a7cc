package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codex-agent/codexd/internal/index"
)

func newSessionsCmd() *cobra.Command {
	var (
		source string
		cwd    string
		branch string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded agent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ix := index.New(cfg.CodexHome, logger)
			defer ix.Close()

			res, err := ix.List(context.Background(),
				index.Filter{Source: source, Cwd: cwd, GitBranch: branch},
				index.Sort{Desc: true},
				index.Page{Limit: limit},
			)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tCWD\tTITLE")
			for _, s := range res.Sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					s.ID, s.UpdatedAt.Format(time.RFC3339), s.Cwd, s.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Printf("\n%d of %d sessions\n", len(res.Sessions), res.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "filter by session source")
	cmd.Flags().StringVar(&cwd, "cwd", "", "filter by working directory")
	cmd.Flags().StringVar(&branch, "branch", "", "filter by git branch")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum sessions to show")
	return cmd
}
