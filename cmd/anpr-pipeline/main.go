package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"anpr-pipeline/internal/auth"
	"anpr-pipeline/internal/client"
	"anpr-pipeline/internal/config"
	"anpr-pipeline/internal/detection"
	httphandler "anpr-pipeline/internal/http"
	"anpr-pipeline/internal/http/middleware"
	"anpr-pipeline/internal/logger"
	"anpr-pipeline/internal/ocr"
	"anpr-pipeline/internal/pipeline"
	"anpr-pipeline/internal/plate"
	"anpr-pipeline/internal/publisher"
	"anpr-pipeline/internal/service"
	"anpr-pipeline/internal/stream"
	"anpr-pipeline/internal/vision"
)

const usage = `usage: anpr-pipeline <command> [flags]

commands:
  image   recognize plates in a single image
  live    run recognition on a capture device
  serve   expose recognition over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	fs := pflag.NewFlagSet(command, pflag.ExitOnError)
	config.Flags(fs)
	imagePath := fs.String("path", "", "image to process (image command)")
	outPath := fs.String("out", "result.jpg", "annotated output image (image command)")
	headless := fs.Bool("headless", false, "do not open preview windows (live command)")
	if err := fs.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "image":
		err = runImage(ctx, cfg, appLogger, *imagePath, *outPath)
	case "live":
		err = runLive(ctx, cfg, appLogger, *headless)
	case "serve":
		err = runServe(ctx, cfg, appLogger)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}

	if err != nil {
		appLogger.Error().Err(err).Str("command", command).Msg("command failed")
		os.Exit(1)
	}
}

// engine owns the native resources behind a pipeline.
type engine struct {
	pipeline   *pipeline.Pipeline
	detector   *vision.YOLODetector
	recognizer *ocr.TesseractRecognizer
}

func (e *engine) Close() {
	_ = e.recognizer.Close()
	_ = e.detector.Close()
}

func newEngine(cfg *config.Config, log zerolog.Logger) (*engine, error) {
	if err := cfg.RequireModel(); err != nil {
		return nil, err
	}

	detector, err := vision.NewYOLODetector(vision.DetectorConfig{
		ModelPath:    cfg.Model.Path,
		InputSize:    cfg.Model.InputSize,
		MinScore:     math.Min(cfg.Batch.Confidence, cfg.Live.Confidence),
		NMSThreshold: cfg.Model.NMSThreshold,
	})
	if err != nil {
		return nil, err
	}

	recognizer, err := ocr.NewTesseractRecognizer(ocr.Config{
		Language:  cfg.OCR.Language,
		Whitelist: cfg.OCR.Whitelist,
	}, vision.EncodePNG)
	if err != nil {
		_ = detector.Close()
		return nil, err
	}

	pcfg := pipeline.Config{
		ClassID: cfg.Model.PlateClassID,
		Batch: detection.Mode{
			Name:      detection.Batch.Name,
			Threshold: cfg.Batch.Confidence,
			Padding:   cfg.Batch.Padding,
			ROIMask:   cfg.Batch.ROIMask,
		},
		Live: detection.Mode{
			Name:      detection.Live.Name,
			Threshold: cfg.Live.Confidence,
			Padding:   cfg.Live.Padding,
			EarlyExit: true,
			ROIMask:   cfg.Live.ROIMask,
		},
		FrameSkip: cfg.Camera.FrameSkip,
	}

	log.Info().
		Str("model", cfg.Model.Path).
		Str("ocr_language", cfg.OCR.Language).
		Float64("batch_confidence", pcfg.Batch.Threshold).
		Float64("live_confidence", pcfg.Live.Threshold).
		Int("frame_skip", pcfg.FrameSkip).
		Msg("recognition engine ready")

	return &engine{
		pipeline:   pipeline.New(detector, vision.NewImaging(), recognizer, plate.Default(), pcfg, log),
		detector:   detector,
		recognizer: recognizer,
	}, nil
}

// newSinks builds the configured reading sinks and a func releasing them.
func newSinks(ctx context.Context, cfg *config.Config, log zerolog.Logger) ([]service.Sink, func()) {
	var (
		sinks   []service.Sink
		closers []func() error
	)
	if cfg.ExternalServices.ANPRServiceURL != "" {
		sinks = append(sinks, client.NewANPRClient(cfg))
	}
	if cfg.ExternalServices.RedisURL != "" {
		pub, err := publisher.NewRedisPublisher(ctx, cfg.ExternalServices.RedisURL, cfg.ExternalServices.RedisChannel)
		if err != nil {
			log.Warn().Err(err).Msg("redis publishing disabled")
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, pub.Close)
		}
	}
	for _, s := range sinks {
		log.Info().Str("sink", s.Name()).Msg("reporting readings")
	}
	return sinks, func() {
		for _, c := range closers {
			_ = c()
		}
	}
}

func runImage(ctx context.Context, cfg *config.Config, log zerolog.Logger, path, out string) error {
	if path == "" {
		return errors.New("--path is required")
	}

	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	frame, err := vision.LoadImage(path)
	if err != nil {
		return err
	}
	defer frame.Close()

	res := eng.pipeline.ProcessImage(ctx, frame)
	for _, c := range res.Candidates {
		ev := log.Info().
			Float64("confidence", c.Confidence).
			Str("raw", c.RawText)
		if c.Valid() {
			ev.Str("plate", c.FormattedText).Msg("plate recognized")
		} else {
			ev.Msg("region unreadable")
		}
	}
	if len(res.Detections) == 0 {
		log.Info().Str("path", path).Msg("no plate detected")
	}

	if err := vision.Draw(frame, res.Directives); err != nil {
		return err
	}
	if err := vision.WriteImage(out, frame); err != nil {
		return err
	}
	log.Info().Str("out", out).Int("plates", len(res.Plates())).Msg("annotated image written")
	return nil
}

func runLive(ctx context.Context, cfg *config.Config, log zerolog.Logger, headless bool) error {
	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	sinks, closeSinks := newSinks(ctx, cfg, log)
	defer closeSinks()

	svc := service.NewANPRService(eng.pipeline, vision.Decoder{}, plate.Default(), sinks, cfg.Camera.Model, log)

	runner := stream.NewRunner(eng.pipeline, svc, stream.Config{
		CameraID:    cfg.Camera.ID,
		DeviceIndex: cfg.Camera.Index,
		Width:       cfg.Camera.Width,
		Height:      cfg.Camera.Height,
		DebugDir:    cfg.DebugDir,
		Headless:    headless,
	}, log)
	return runner.Run(ctx)
}

func runServe(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	eng, err := newEngine(cfg, log)
	if err != nil {
		return err
	}
	defer eng.Close()

	sinks, closeSinks := newSinks(ctx, cfg, log)
	defer closeSinks()

	svc := service.NewANPRService(eng.pipeline, vision.Decoder{}, plate.Default(), sinks, cfg.Camera.Model, log)

	authMiddleware := middlewareFor(cfg, log)
	handler := httphandler.NewHandler(svc, log)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("starting anpr pipeline service")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func middlewareFor(cfg *config.Config, log zerolog.Logger) gin.HandlerFunc {
	if cfg.Auth.AccessSecret == "" {
		log.Warn().Msg("JWT_ACCESS_SECRET not set, recognition endpoint is unauthenticated")
		return nil
	}
	return middleware.Auth(auth.NewParser(cfg.Auth.AccessSecret))
}
