package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"xray/config"
	"xray/video/source"
)

func newRootCmd() *cobra.Command {
	var configPath string
	var debug bool

	rootCmd := &cobra.Command{
		Use:           "xray",
		Short:         "Record a camera while classifying what it sees",
		Long:          "Records the camera to a movie file while an image classifier labels sampled frames.\nEach label is kept with its offset into the movie so playback can seek to it.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if debug {
				log.SetLevel(log.DebugLevel)
			}
			if configPath == "" {
				config.Set(config.Default())
				return nil
			}
			return config.Load(cmd.Context(), configPath)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file, JSON or TOML. Reloaded on change.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging.")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newProbeCmd())

	return rootCmd
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var setup *source.SetupError
		if errors.As(err, &setup) {
			log.WithField("uri", setup.URI).Errorf("Camera setup failed: %v", err)
		} else {
			log.Error(err)
		}
		stop()
		os.Exit(1)
	}
}
