package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/pipeline"
	"anpr-pipeline/internal/plate"
	"anpr-pipeline/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// Sink receives recognized plates, e.g. the ANPR events service or Redis.
type Sink interface {
	Name() string
	Publish(ctx context.Context, payload anpr.EventPayload) error
}

type ImageDecoder interface {
	Decode(data []byte) (pipeline.Image, error)
}

type ImageProcessor interface {
	ProcessImage(ctx context.Context, frame pipeline.Frame) pipeline.ImageResult
}

type ANPRService struct {
	processor   ImageProcessor
	decoder     ImageDecoder
	matcher     *plate.Matcher
	sinks       []Sink
	cameraModel string
	log         zerolog.Logger

	// The detector and recognizer hold native handles that are not safe
	// for concurrent use.
	mu sync.Mutex
}

func NewANPRService(processor ImageProcessor, decoder ImageDecoder, matcher *plate.Matcher, sinks []Sink, cameraModel string, log zerolog.Logger) *ANPRService {
	if matcher == nil {
		matcher = plate.Default()
	}
	return &ANPRService{
		processor:   processor,
		decoder:     decoder,
		matcher:     matcher,
		sinks:       sinks,
		cameraModel: cameraModel,
		log:         log,
	}
}

// NormalizeText runs the sanitizer and matcher on free text.
func (s *ANPRService) NormalizeText(text string) (*anpr.NormalizeResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is required", ErrInvalidInput)
	}

	res := &anpr.NormalizeResult{
		Raw:       text,
		Sanitized: utils.SanitizePlate(text),
	}

	match, err := s.matcher.Match(res.Sanitized)
	if err != nil {
		s.log.Debug().
			Str("raw", text).
			Str("sanitized", res.Sanitized).
			Err(err).
			Msg("text did not match a plate format")
		return res, nil
	}

	res.Candidate = match.Candidate
	res.Plate = match.Formatted
	res.Grammar = match.Grammar
	res.Valid = true
	return res, nil
}

// RecognizeImage runs batch recognition on an encoded image.
func (s *ANPRService) RecognizeImage(ctx context.Context, data []byte) (*anpr.RecognitionResult, error) {
	if s.processor == nil || s.decoder == nil {
		return nil, fmt.Errorf("%w: image recognition is not configured", ErrNotFound)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: image is required", ErrInvalidInput)
	}

	frame, err := s.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	defer frame.Close()

	s.mu.Lock()
	res := s.processor.ProcessImage(ctx, frame)
	s.mu.Unlock()

	out := &anpr.RecognitionResult{
		ID:         uuid.NewString(),
		Width:      frame.Width(),
		Height:     frame.Height(),
		Plates:     res.Plates(),
		Directives: res.Directives,
	}
	if out.Plates == nil {
		out.Plates = []anpr.Candidate{}
	}

	s.log.Info().
		Str("recognition_id", out.ID).
		Int("detections", len(res.Detections)).
		Int("plates", len(out.Plates)).
		Msg("image recognized")

	return out, nil
}

// NewReading builds a reading for a validated candidate.
func NewReading(cameraID string, frame int64, cand anpr.Candidate, at time.Time) anpr.Reading {
	return anpr.Reading{
		ID:         uuid.NewString(),
		CameraID:   cameraID,
		Plate:      cand.FormattedText,
		RawText:    cand.RawText,
		Sanitized:  cand.SanitizedText,
		Grammar:    cand.Grammar,
		Confidence: cand.Confidence,
		Box:        cand.SourceBox,
		FrameIndex: frame,
		ObservedAt: at,
	}
}

// ReportReading sends a reading to every sink. A failing sink does not stop
// the others; all failures are returned joined.
func (s *ANPRService) ReportReading(ctx context.Context, reading anpr.Reading) error {
	if reading.Plate == "" {
		return fmt.Errorf("%w: plate is required", ErrInvalidInput)
	}
	if reading.CameraID == "" {
		return fmt.Errorf("%w: camera_id is required", ErrInvalidInput)
	}

	payload := s.payload(reading)

	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, payload); err != nil {
			s.log.Error().
				Err(err).
				Str("sink", sink.Name()).
				Str("plate", reading.Plate).
				Str("camera_id", reading.CameraID).
				Msg("failed to report reading")
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			continue
		}
		s.log.Debug().
			Str("sink", sink.Name()).
			Str("reading_id", reading.ID).
			Str("plate", reading.Plate).
			Msg("reading reported")
	}

	return errors.Join(errs...)
}

func (s *ANPRService) payload(r anpr.Reading) anpr.EventPayload {
	eventTime := r.ObservedAt
	if eventTime.IsZero() {
		eventTime = time.Now()
	}
	return anpr.EventPayload{
		CameraID:    r.CameraID,
		CameraModel: s.cameraModel,
		Plate:       r.Plate,
		Confidence:  r.Confidence,
		EventTime:   eventTime,
		RawPayload: map[string]interface{}{
			"reading_id": r.ID,
			"normalized": utils.NormalizePlate(r.Plate),
			"raw_text":   r.RawText,
			"sanitized":  r.Sanitized,
			"grammar":    r.Grammar,
			"frame":      r.FrameIndex,
			"box":        r.Box,
		},
	}
}
