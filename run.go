package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"xray/config"
	"xray/serve"
	"xray/util"
	"xray/video"
	"xray/video/process"
	"xray/video/sink"
	"xray/video/source"
)

const previewFPS = 15

func newRunCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run [camera URI]",
		Short: "Serve the camera preview, recording controls and results",
		Long:  "Opens the camera and hosts the web frontend. The URI is a camera index, a stream URL or a movie file and overrides the configured one.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri := config.Get().URI
			if len(args) > 0 {
				uri = args[0]
			}
			return runServer(cmd.Context(), uri, port)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to host web frontend.")
	return cmd
}

func newNormalizer(cfg *config.Config) (*process.Normalizer, error) {
	format, err := process.ParsePixelFormat(cfg.InputFormat)
	if err != nil {
		return nil, err
	}
	return process.NewNormalizer(cfg.InputSize(), format), nil
}

func newClassifier(cfg *config.Config) (*process.NetClassifier, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("no model configured, set model_path")
	}
	opts := process.NetOptions{
		Model:  cfg.ModelPath,
		Config: cfg.ModelConfig,
		Scale:  cfg.ModelScale,
		SwapRB: cfg.ModelSwapRB,
	}
	if len(cfg.ModelMean) == 3 {
		opts.Mean = gocv.NewScalar(cfg.ModelMean[0], cfg.ModelMean[1], cfg.ModelMean[2], 0)
	}
	if cfg.LabelsPath != "" {
		labels, err := process.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, fmt.Errorf("loading labels: %w", err)
		}
		opts.Labels = labels
	}
	return process.NewNetClassifier(opts)
}

func runServer(ctx context.Context, uri string, port int) error {
	cfg := config.Get()

	var ffmpegp string
	if cfg.Encoder == "ffmpeg" {
		p, err := util.LocateFFmpeg()
		if err != nil {
			return fmt.Errorf("ffmpeg is required for saving video files; put it in $PATH or set %s: %w", util.FFmpegEnv, err)
		}
		log.Infof("Located ffmpeg binary, %v", p)
		ffmpegp = p
	}

	cl, err := newClassifier(cfg)
	if err != nil {
		return err
	}
	defer cl.Close()

	norm, err := newNormalizer(cfg)
	if err != nil {
		return err
	}

	fs, err := video.NewFilesystem(cfg.OutputDir, cfg.OutputName, cfg.Container)
	if err != nil {
		return fmt.Errorf("failed to create filesystem: %w", err)
	}

	factory, err := sink.EncoderFactoryFor(cfg.Encoder)
	if err != nil {
		return err
	}

	cap, err := source.OpenVideoCapture(uri, cfg.FPS)
	if err != nil {
		return err
	}

	gate := process.NewGate(norm, cl)
	gate.FallbackLabel = cfg.FallbackLabel
	gate.Thumbnails = cfg.Thumbnails

	mjpegServer := sink.NewMJPEGServer()
	preview := mjpegServer.NewStream("preview")
	preview.MaxFPS = previewFPS
	defer preview.Close()

	results := &serve.ResultsServer{}
	events := serve.NewEventsUpdater()

	var probe func(string) (time.Duration, error)
	if cfg.Container == "mp4" {
		probe = video.ProbeDuration
	}

	p, err := video.NewPipeline(cap, video.PipelineOptions{
		Filesystem: fs,
		Encoder:    factory,
		EncoderOptions: sink.EncoderOptions{
			Size:        cap.Size(),
			FPS:         cap.FPS(),
			Codec:       cfg.Codec,
			Container:   cfg.Container,
			ReadyWindow: cfg.ReadyWindow,
			FFmpegPath:  ffmpegp,
		},
		Gate:      gate,
		Probe:     probe,
		Listeners: []video.Listener{events},
		Handoffs:  []video.Handoff{results, events},
		Previews:  []sink.Sink{preview},
	})
	if err != nil {
		cap.Close()
		return err
	}
	defer p.Close()

	mux := http.NewServeMux()
	mux.Handle("/mjpeg", mjpegServer)
	mux.Handle("/record", &serve.RecordServer{Recorder: p})
	mux.Handle("/stop", &serve.StopServer{Recorder: p})
	mux.Handle("/status", &serve.StatusServer{Recorder: p})
	mux.Handle("/results", handlers.CompressHandler(results))
	mux.Handle("/seek", &serve.SeekServer{Results: results})
	mux.Handle("/video", &serve.VideoServer{Results: results})
	mux.Handle("/thumb", &serve.ThumbServer{Results: results})
	mux.Handle("/eventsws", events)
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", http.FileServer(serve.Assets()))

	access := log.StandardLogger().Writer()
	defer access.Close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handlers.CombinedLoggingHandler(access, mux),
	}
	errc := make(chan error, 1)
	go func() {
		log.Infof("Hosting web frontend on port %d", port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		log.Info("Caught signal, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
