package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/config"
	"github.com/xchatlife/novelgraph/internal/snapshot"
	"github.com/xchatlife/novelgraph/internal/storage/postgres"
	"github.com/xchatlife/novelgraph/internal/storage/sqlite"
)

func listCmd() *cobra.Command {
	var driver, path string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the novels stored in a snapshot database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			var (
				novels []snapshot.Summary
				err    error
			)
			switch driver {
			case config.DriverSQLite:
				st, oerr := sqlite.Open(ctx, path, "")
				if oerr != nil {
					return oerr
				}
				defer st.Close()
				novels, err = st.List(ctx)
			case config.DriverPostgres:
				pg, oerr := postgres.New(ctx, "")
				if oerr != nil {
					return oerr
				}
				defer pg.Close()
				novels, err = pg.List(ctx)
			default:
				return fmt.Errorf("unsupported storage driver %q", driver)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(novels) == 0 {
				fmt.Fprintln(out, Subtle.Sprint("no novels stored"))
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "NOVEL\tTITLE\tREVISION\tUPDATED")
			for _, n := range novels {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", n.NovelID, n.Title, n.Revision,
					n.UpdatedAt.Local().Format(time.DateTime))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&driver, "driver", config.DriverSQLite, "storage driver, sqlite or postgres")
	cmd.Flags().StringVar(&path, "sqlite-path", "novelgraph.db", "SQLite database path")
	return cmd
}
