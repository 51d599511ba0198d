package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/preview-capture/internal/config"
	"github.com/xkilldash9x/preview-capture/internal/observability"
	"github.com/xkilldash9x/preview-capture/internal/store"
)

var errNoDatabase = errors.New("database.url is required (hint: set PREVIEW_DATABASE_URL or DATABASE_URL)")

// newHistoryCmd creates the `history` command, which lists recent captures from the ledger.
func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Lists the most recent captures recorded in the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := config.Decode(a.v)
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errNoDatabase
			}

			st, closeDB, err := store.Connect(ctx, cfg.Database.URL, observability.GetLogger().Named("cli"))
			if err != nil {
				return err
			}
			defer closeDB()

			records, err := st.RecentCaptures(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, records)
			}
			return writeTable(cmd, records)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of captures to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the records as JSON")
	return cmd
}

func writeTable(cmd *cobra.Command, records []store.Record) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CAPTURED\tKEY\tSTATUS\tLOCATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.CapturedAt.UTC().Format(time.RFC3339), r.Key, r.StatusCode, r.Location)
	}
	return w.Flush()
}
