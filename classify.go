package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"xray/config"
)

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <image>",
		Short: "Classify a single image file with the configured model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Get()

			img := gocv.IMRead(args[0], gocv.IMReadColor)
			defer img.Close()
			if img.Empty() {
				return fmt.Errorf("unable to read image %v", args[0])
			}

			norm, err := newNormalizer(cfg)
			if err != nil {
				return err
			}
			input, err := norm.Normalize(img)
			if err != nil {
				return err
			}
			defer input.Close()

			cl, err := newClassifier(cfg)
			if err != nil {
				return err
			}
			defer cl.Close()

			c, err := cl.Classify(input)
			if err != nil {
				return err
			}
			if c.Label == "" {
				c.Label = cfg.FallbackLabel
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%.3f\t(class %d)\n", c.Label, c.Confidence, c.Class)
			return nil
		},
	}
}
