package pipeline

import (
	"context"

	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/tracker"
)

// FrameResult is the live outcome for one frame.
type FrameResult struct {
	Index     int64
	Attempted bool
	// Detections are the accepted regions of an attempted frame.
	Detections []anpr.Detection
	// Candidate is the first region that validated, if any.
	Candidate  *anpr.Candidate
	State      tracker.State
	Directives []anpr.Directive
	// NewPlate is set when the held plate text changed to a new value.
	NewPlate bool
}

// Stream is one live session: frame counter, tracker and the crops of the
// most recent attempted frame. It belongs to a single loop goroutine.
type Stream struct {
	p       *Pipeline
	tracker *tracker.Tracker
	index   int64
	crops   *Crops
}

func (p *Pipeline) NewStream() *Stream {
	return &Stream{
		p:       p,
		tracker: tracker.New(),
	}
}

// Next processes one captured frame.
func (s *Stream) Next(ctx context.Context, frame Frame) FrameResult {
	s.index++
	res := FrameResult{
		Index:     s.index,
		Attempted: s.index%int64(s.p.cfg.FrameSkip) == 0,
	}

	prev := s.tracker.State()
	obs := tracker.Observation{Frame: s.index, Attempted: res.Attempted}

	if res.Attempted {
		s.releaseCrops()
		var read *anpr.Box
		res.Detections, read, res.Candidate = s.readFrame(ctx, frame)
		obs.Detected = read
		if res.Candidate != nil {
			obs.Plate = res.Candidate.FormattedText
			obs.PlateBox = res.Candidate.SourceBox
		}
	}

	res.State = s.tracker.Observe(obs)
	res.Directives = tracker.Directives(res.State, obs)
	res.NewPlate = res.State.Holding() && (!prev.Holding() || prev.Plate.Text != res.State.Plate.Text)

	if res.NewPlate {
		s.p.log.Info().
			Int64("frame", s.index).
			Str("plate", res.State.Plate.Text).
			Msg("plate recognized")
	}

	return res
}

// readFrame walks accepted regions in detector order. It returns the
// accepted detections, the box of the last region that produced a crop and
// the first candidate that validated.
func (s *Stream) readFrame(ctx context.Context, frame Frame) ([]anpr.Detection, *anpr.Box, *anpr.Candidate) {
	mode := s.p.cfg.Live
	accepted := s.p.detect(ctx, frame, mode)

	var (
		read  *anpr.Box
		found *anpr.Candidate
	)
	for _, det := range accepted {
		if ctx.Err() != nil {
			break
		}
		cand, crops, err := s.p.readRegion(ctx, frame, det, mode)
		if err != nil {
			continue
		}
		s.releaseCrops()
		s.crops = crops

		box := det.Box
		read = &box

		if !cand.Valid() || found != nil {
			continue
		}
		found = &cand
		s.p.log.Debug().
			Str("raw", cand.RawText).
			Str("plate", cand.FormattedText).
			Msg("region validated")
		if mode.EarlyExit {
			break
		}
	}
	return accepted, read, found
}

// Crops returns the raw and binarized cut of the last region read, or nil.
// The stream keeps ownership.
func (s *Stream) Crops() *Crops {
	return s.crops
}

func (s *Stream) State() tracker.State {
	return s.tracker.State()
}

func (s *Stream) Close() {
	s.releaseCrops()
}

func (s *Stream) releaseCrops() {
	s.crops.Close()
	s.crops = nil
}
