// Package stream runs the live camera loop: capture, process, draw, show.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/pipeline"
	"anpr-pipeline/internal/service"
	"anpr-pipeline/internal/vision"
)

// ErrCaptureUnavailable is returned when the capture device cannot be opened.
var ErrCaptureUnavailable = errors.New("capture device unavailable")

const (
	KeyQuit = 'q'
	KeySave = 's'

	mainWindow = "OCR and detection in real time"
	cropWindow = "Cut license plate (B/W processed for OCR)"
)

type Reporter interface {
	ReportReading(ctx context.Context, reading anpr.Reading) error
}

type Config struct {
	CameraID    string
	DeviceIndex int
	Width       int
	Height      int
	DebugDir    string
	// Headless disables the preview windows and key handling.
	Headless bool
}

type Runner struct {
	pipeline *pipeline.Pipeline
	reporter Reporter
	cfg      Config
	log      zerolog.Logger
}

func NewRunner(p *pipeline.Pipeline, reporter Reporter, cfg Config, log zerolog.Logger) *Runner {
	return &Runner{
		pipeline: p,
		reporter: reporter,
		cfg:      cfg,
		log:      log,
	}
}

// Run blocks until ctx is cancelled, the quit key is pressed or the device
// stops producing frames.
func (r *Runner) Run(ctx context.Context) error {
	capture, err := gocv.OpenVideoCapture(r.cfg.DeviceIndex)
	if err != nil {
		return fmt.Errorf("%w: %d: %v", ErrCaptureUnavailable, r.cfg.DeviceIndex, err)
	}
	defer capture.Close()
	if !capture.IsOpened() {
		return fmt.Errorf("%w: %d", ErrCaptureUnavailable, r.cfg.DeviceIndex)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(r.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(r.cfg.Height))
	r.log.Info().
		Int("device", r.cfg.DeviceIndex).
		Int("width", int(capture.Get(gocv.VideoCaptureFrameWidth))).
		Int("height", int(capture.Get(gocv.VideoCaptureFrameHeight))).
		Msg("capture opened")

	var display, cropDisplay *gocv.Window
	if !r.cfg.Headless {
		display = gocv.NewWindow(mainWindow)
		defer display.Close()
		cropDisplay = gocv.NewWindow(cropWindow)
		defer cropDisplay.Close()
		r.log.Info().Msgf("press %q to exit and %q to save the plate crop", KeyQuit, KeySave)
	}

	reports := r.startReporter(ctx)
	defer close(reports)

	s := r.pipeline.NewStream()
	defer s.Close()

	img := gocv.NewMat()
	defer img.Close()
	frame := vision.Wrap(img)

	for {
		if ctx.Err() != nil {
			r.log.Info().Msg("stopping live loop")
			return nil
		}
		if ok := capture.Read(frame.Native()); !ok || frame.Native().Empty() {
			r.log.Warn().Msg("capture returned no frame, stopping")
			return nil
		}

		res := s.Next(ctx, frame)
		if res.NewPlate && res.Candidate != nil {
			r.enqueue(reports, service.NewReading(r.cfg.CameraID, res.Index, *res.Candidate, time.Now()))
		}

		if err := vision.Draw(frame, res.Directives); err != nil {
			r.log.Error().Err(err).Msg("failed to draw directives")
		}

		if display == nil {
			continue
		}
		if crops := s.Crops(); res.Attempted && crops != nil && crops.Binary != nil {
			if m, ok := crops.Binary.(*vision.Mat); ok {
				cropDisplay.IMShow(*m.Native())
			}
		}
		display.IMShow(*frame.Native())

		switch display.WaitKey(1) & 0xFF {
		case KeyQuit:
			r.log.Info().Msg("quit requested")
			return nil
		case KeySave:
			r.saveCrops(s.Crops())
		}
	}
}

func (r *Runner) saveCrops(crops *pipeline.Crops) {
	paths, err := vision.SaveCrops(r.cfg.DebugDir, crops)
	if err != nil {
		r.log.Warn().Err(err).Msg("nothing saved")
		return
	}
	r.log.Info().Strs("files", paths).Msg("plate crops saved")
}

// startReporter forwards readings off the capture loop so slow sinks never
// stall frame processing.
func (r *Runner) startReporter(ctx context.Context) chan<- anpr.Reading {
	ch := make(chan anpr.Reading, 16)
	go func() {
		for reading := range ch {
			if r.reporter == nil {
				continue
			}
			_ = r.reporter.ReportReading(context.WithoutCancel(ctx), reading)
		}
	}()
	return ch
}

func (r *Runner) enqueue(ch chan<- anpr.Reading, reading anpr.Reading) {
	select {
	case ch <- reading:
	default:
		r.log.Warn().Str("plate", reading.Plate).Msg("report queue full, dropping reading")
	}
}
