package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xchatlife/novelgraph/internal/mqtt"
)

func watchCmd() *cobra.Command {
	var broker, prefix string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print save notices published by running editors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := mqtt.NewClient(broker, fmt.Sprintf("novelctl-watch-%d", os.Getpid()))
			if err := c.Connect(); err != nil {
				return err
			}
			defer c.Disconnect()

			out := cmd.OutOrStdout()
			err := c.WatchSaves(prefix, func(n mqtt.SavedNotice) {
				fmt.Fprintf(out, "%s %s %s rev %d, %d nodes, %d edges\n",
					Subtle.Sprint(n.SavedAt.Local().Format(time.TimeOnly)),
					Title.Sprint(n.NovelID), n.Title, n.Revision, n.Nodes, n.Edges)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watching %s on %s\n", mqtt.SavedTopic(prefix, "+"), broker)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	cmd.Flags().StringVar(&prefix, "prefix", "novelgraph", "topic prefix")
	return cmd
}
