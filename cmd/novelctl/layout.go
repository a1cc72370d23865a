package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/graph"
	"github.com/xchatlife/novelgraph/internal/layout"
	"github.com/xchatlife/novelgraph/internal/snapshot"
)

func layoutCmd() *cobra.Command {
	var (
		direction string
		out       string
	)
	cmd := &cobra.Command{
		Use:   "layout <file>",
		Short: "Recompute node positions and write the document back out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := layout.ParseDirection(direction)
			if err != nil {
				return err
			}
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			s, err := graph.FromSnapshot(doc.Snapshot())
			if err != nil {
				return err
			}
			if _, err := layout.Apply(layout.NewLayered(), s, dir); err != nil {
				return fmt.Errorf("layout: %w", err)
			}
			b, err := snapshot.Encode(doc.NovelID, doc.Title, s.Serialize(), time.Now())
			if err != nil {
				return err
			}

			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(append(b, '\n'))
				return err
			}
			if err := os.WriteFile(out, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s laid out %d nodes %s to %s\n",
				statusIcon(true), s.NodeCount(), dir, out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&direction, "direction", "d", "TB", "layout direction, TB or LR")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}
