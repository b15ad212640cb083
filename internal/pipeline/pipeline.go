// Package pipeline wires detection, cropping, recognition, matching and
// tracking into batch and live-stream processing.
package pipeline

import (
	"context"
	"errors"
	"image"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"anpr-pipeline/internal/detection"
	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/plate"
	"anpr-pipeline/internal/utils"
)

// Frame is any image the collaborators below understand.
type Frame interface {
	Width() int
	Height() int
}

// Image is a frame that owns native memory.
type Image interface {
	Frame
	Close() error
}

type Detector interface {
	Detect(ctx context.Context, frame Frame) ([]anpr.Detection, error)
}

// Imaging cuts and binarizes plate regions.
type Imaging interface {
	Crop(frame Frame, region image.Rectangle) (Image, error)
	// Binarize returns a binary crop re-expanded to three channels.
	// With roiMask set, everything outside the central band is blanked first.
	Binarize(crop Frame, roiMask bool) (Image, error)
}

type Recognizer interface {
	Recognize(ctx context.Context, crop Frame) anpr.Recognition
}

type Config struct {
	ClassID int
	Batch   detection.Mode
	Live    detection.Mode
	// FrameSkip submits every FrameSkip-th live frame to the detector.
	FrameSkip int
}

func DefaultConfig() Config {
	return Config{
		ClassID:   detection.PlateClass,
		Batch:     detection.Batch,
		Live:      detection.Live,
		FrameSkip: 5,
	}
}

// Pipeline is stateless between calls; live state lives in Stream.
type Pipeline struct {
	detector   Detector
	imaging    Imaging
	recognizer Recognizer
	matcher    *plate.Matcher
	cfg        Config
	log        zerolog.Logger
}

func New(detector Detector, imaging Imaging, recognizer Recognizer, matcher *plate.Matcher, cfg Config, log zerolog.Logger) *Pipeline {
	if matcher == nil {
		matcher = plate.Default()
	}
	if cfg.FrameSkip < 1 {
		cfg.FrameSkip = 1
	}
	return &Pipeline{
		detector:   detector,
		imaging:    imaging,
		recognizer: recognizer,
		matcher:    matcher,
		cfg:        cfg,
		log:        log,
	}
}

func (p *Pipeline) Config() Config {
	return p.cfg
}

// ImageResult is the batch outcome for one static image.
type ImageResult struct {
	Detections []anpr.Detection
	Candidates []anpr.Candidate
	Directives []anpr.Directive
}

// Plates returns the validated candidates.
func (r ImageResult) Plates() []anpr.Candidate {
	var out []anpr.Candidate
	for _, c := range r.Candidates {
		if c.Valid() {
			out = append(out, c)
		}
	}
	return out
}

// ProcessImage reads every accepted region of a static image.
func (p *Pipeline) ProcessImage(ctx context.Context, frame Frame) ImageResult {
	mode := p.cfg.Batch
	accepted := p.detect(ctx, frame, mode)

	res := ImageResult{Detections: accepted}
	for _, det := range accepted {
		if ctx.Err() != nil {
			break
		}
		cand, crops, err := p.readRegion(ctx, frame, det, mode)
		crops.Close()
		if err != nil {
			continue
		}

		res.Candidates = append(res.Candidates, cand)
		res.Directives = append(res.Directives, candidateDirectives(cand)...)
	}

	p.log.Debug().
		Int("detections", len(accepted)).
		Int("plates", len(res.Plates())).
		Msg("image processed")

	return res
}

func (p *Pipeline) detect(ctx context.Context, frame Frame, mode detection.Mode) []anpr.Detection {
	raw, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.log.Error().Err(err).Str("mode", mode.Name).Msg("detector failed")
		return nil
	}
	return detection.NewFilter(p.cfg.ClassID, mode.Threshold).Accept(raw)
}

// Crops is the raw and binarized cut of one region.
type Crops struct {
	Raw    Image
	Binary Image
}

func (c *Crops) Close() {
	if c == nil {
		return
	}
	if c.Raw != nil {
		_ = c.Raw.Close()
		c.Raw = nil
	}
	if c.Binary != nil {
		_ = c.Binary.Close()
		c.Binary = nil
	}
}

// readRegion runs crop, binarize, recognize and match for one detection.
// An error means the region produced no crop; a recognizer fault or a
// failed match still returns a candidate, just an invalid one.
func (p *Pipeline) readRegion(ctx context.Context, frame Frame, det anpr.Detection, mode detection.Mode) (anpr.Candidate, *Crops, error) {
	region, err := detection.Region(det.Box, mode.Padding, frame.Width(), frame.Height())
	if err != nil {
		p.log.Debug().Err(err).Msg("skipping region")
		return anpr.Candidate{}, nil, err
	}

	raw, err := p.imaging.Crop(frame, region)
	if err != nil {
		p.log.Debug().Err(err).Msg("skipping region")
		return anpr.Candidate{}, nil, err
	}
	crops := &Crops{Raw: raw}

	binary, err := p.imaging.Binarize(raw, mode.ROIMask)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to binarize crop")
		crops.Close()
		return anpr.Candidate{}, nil, err
	}
	crops.Binary = binary

	cand := anpr.Candidate{
		Confidence: det.Confidence,
		SourceBox:  det.Box,
	}

	rec := p.recognizer.Recognize(ctx, binary)
	if rec.Faulted() {
		p.log.Error().Err(rec.Err).Msg("recognizer fault, treating region as unread")
		return cand, crops, nil
	}

	cand.RawText = JoinFragments(rec.Fragments)
	cand.SanitizedText = utils.SanitizePlate(cand.RawText)

	match, err := p.matcher.Match(cand.SanitizedText)
	switch {
	case err == nil:
		cand.FormattedText = match.Formatted
		cand.Grammar = match.Grammar
	case errors.Is(err, plate.ErrNoCandidate), errors.Is(err, plate.ErrGrammarMismatch):
		p.log.Debug().
			Str("raw", cand.RawText).
			Str("sanitized", cand.SanitizedText).
			Err(err).
			Msg("text does not match any plate format")
	}

	return cand, crops, nil
}

// JoinFragments concatenates fragment text left to right by each
// fragment's minimum x coordinate. Equal positions keep recognizer order.
func JoinFragments(fragments []anpr.Fragment) string {
	ordered := make([]anpr.Fragment, len(fragments))
	copy(ordered, fragments)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].MinX() < ordered[j].MinX()
	})

	var b strings.Builder
	for _, f := range ordered {
		b.WriteString(f.Text)
	}
	return b.String()
}

func candidateDirectives(c anpr.Candidate) []anpr.Directive {
	if !c.Valid() {
		return []anpr.Directive{{Kind: anpr.DirectiveBox, Box: c.SourceBox, Outcome: anpr.OutcomeFailure}}
	}
	return []anpr.Directive{
		{Kind: anpr.DirectiveLabel, Box: c.SourceBox, Text: c.FormattedText, Outcome: anpr.OutcomeSuccess},
		{Kind: anpr.DirectiveBox, Box: c.SourceBox, Outcome: anpr.OutcomeSuccess},
	}
}
