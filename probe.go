package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"xray/video"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <movie>",
		Short: "Print the duration of an mp4 movie",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := video.ProbeDuration(args[0])
			if err != nil {
				return fmt.Errorf("probing %v: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), d)
			return nil
		},
	}
}
