package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/graph"
)

func validateCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Check documents against the schema and report story problems",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			var failed, warned int
			for _, path := range args {
				doc, err := readDocument(path)
				if err != nil {
					fmt.Fprintf(out, "%s %s\n", statusIcon(false), err)
					failed++
					continue
				}
				s, err := graph.FromSnapshot(doc.Snapshot())
				if err != nil {
					fmt.Fprintf(out, "%s %s: %v\n", statusIcon(false), path, err)
					failed++
					continue
				}
				issues := s.Check()
				fmt.Fprintf(out, "%s %s %s\n", statusIcon(len(issues) == 0), path,
					Subtle.Sprintf("(%d nodes, %d edges)", s.NodeCount(), s.EdgeCount()))
				for _, is := range issues {
					fmt.Fprintf(out, "    %s %-20s %s  %s\n", Warn.Sprint("!"), is.Kind,
						describeNode(s, is.NodeID), Subtle.Sprint(is.Message))
				}
				if len(issues) > 0 {
					warned++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents are invalid", failed, len(args))
			}
			if strict && warned > 0 {
				return fmt.Errorf("%d of %d documents have story issues", warned, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "treat story issues as failures")
	return cmd
}
