package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/playback"
)

func playCmd() *cobra.Command {
	var (
		choices  string
		maxSteps int
	)
	cmd := &cobra.Command{
		Use:   "play <file>",
		Short: "Play through a story, taking the given choices in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			picks, err := parseChoices(choices)
			if err != nil {
				return err
			}
			doc, err := readDocument(args[0])
			if err != nil {
				return err
			}
			p, err := playback.New(doc.Snapshot(), playback.WithMaxAutoSteps(maxSteps))
			if err != nil {
				return err
			}

			frames, err := p.Play(picks)
			out := cmd.OutOrStdout()
			for _, f := range frames {
				printFrame(out, f)
			}
			if errors.Is(err, playback.ErrChoicesMissing) {
				fmt.Fprintln(out, Warn.Sprint("  (out of choices, pass more with --choices)"))
				return nil
			}
			if err != nil {
				return err
			}
			if p.State() == playback.StateStalled {
				return fmt.Errorf("playthrough stalled: %s", p.Current().Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&choices, "choices", "", "comma separated choice indexes, e.g. 0,1")
	cmd.Flags().IntVar(&maxSteps, "max-auto-steps", playback.DefaultMaxAutoSteps, "limit on consecutive start/jump transitions")
	return cmd
}

func parseChoices(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var picks []int
	for _, part := range strings.Split(s, ",") {
		i, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || i < 0 {
			return nil, fmt.Errorf("invalid choice %q", part)
		}
		picks = append(picks, i)
	}
	return picks, nil
}

func printFrame(w io.Writer, f playback.Frame) {
	switch f.State {
	case playback.StateShowing:
		fmt.Fprintf(w, "%s %s\n", Title.Sprint(f.Label), Subtle.Sprint(f.NodeID))
		if f.CharacterName != "" {
			fmt.Fprintf(w, "  %s: %s\n", f.CharacterName, f.Dialogue)
		} else if f.Dialogue != "" {
			fmt.Fprintf(w, "  %s\n", f.Dialogue)
		}
	case playback.StateChoosing:
		fmt.Fprintf(w, "%s %s\n", Title.Sprint(f.Label), Subtle.Sprint(f.NodeID))
		for i, c := range f.Choices {
			fmt.Fprintf(w, "  [%d] %s\n", i, c)
		}
	case playback.StateEnded:
		fmt.Fprintf(w, "%s %s ending\n", Good.Sprint("THE END"), f.Ending)
		if f.FinalMessage != "" {
			fmt.Fprintf(w, "  %s\n", f.FinalMessage)
		}
	case playback.StateStalled:
		fmt.Fprintf(w, "%s at %s: %s\n", Bad.Sprint("stalled"), f.NodeID, f.Reason)
	}
}
