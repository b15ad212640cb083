package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anpr-pipeline/internal/detection"
	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/tracker"
)

type fakeFrame struct {
	w, h   int
	region image.Rectangle
	closed bool
}

func (f *fakeFrame) Width() int  { return f.w }
func (f *fakeFrame) Height() int { return f.h }
func (f *fakeFrame) Close() error {
	f.closed = true
	return nil
}

type fakeDetector struct {
	perCall [][]anpr.Detection
	calls   int
	err     error
}

func (d *fakeDetector) Detect(_ context.Context, _ Frame) ([]anpr.Detection, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	if len(d.perCall) == 0 {
		return nil, nil
	}
	i := d.calls - 1
	if i >= len(d.perCall) {
		i = len(d.perCall) - 1
	}
	return d.perCall[i], nil
}

type fakeImaging struct {
	opened   []*fakeFrame
	masked   []bool
	failCrop bool
}

func (m *fakeImaging) Crop(_ Frame, region image.Rectangle) (Image, error) {
	if m.failCrop {
		return nil, errors.New("crop failed")
	}
	f := &fakeFrame{w: region.Dx(), h: region.Dy(), region: region}
	m.opened = append(m.opened, f)
	return f, nil
}

func (m *fakeImaging) Binarize(crop Frame, roiMask bool) (Image, error) {
	src := crop.(*fakeFrame)
	f := &fakeFrame{w: src.w, h: src.h, region: src.region}
	m.opened = append(m.opened, f)
	m.masked = append(m.masked, roiMask)
	return f, nil
}

func (m *fakeImaging) openCount() int {
	n := 0
	for _, f := range m.opened {
		if !f.closed {
			n++
		}
	}
	return n
}

// fakeRecognizer answers by the crop's top-left corner.
type fakeRecognizer struct {
	byOrigin map[image.Point]anpr.Recognition
	calls    int
}

func (r *fakeRecognizer) Recognize(_ context.Context, crop Frame) anpr.Recognition {
	r.calls++
	rec, ok := r.byOrigin[crop.(*fakeFrame).region.Min]
	if !ok {
		return anpr.Recognition{}
	}
	return rec
}

func text(parts ...string) anpr.Recognition {
	rec := anpr.Recognition{}
	for i, p := range parts {
		rec.Fragments = append(rec.Fragments, anpr.Fragment{Text: p, Box: anpr.Box{X1: i * 10, X2: i*10 + 9}})
	}
	return rec
}

func plateAt(x, y int, conf float64) anpr.Detection {
	return anpr.Detection{Box: anpr.Box{X1: x, Y1: y, X2: x + 100, Y2: y + 30}, Confidence: conf, ClassID: detection.PlateClass}
}

func newTestPipeline(det Detector, img Imaging, rec Recognizer, frameSkip int) *Pipeline {
	cfg := DefaultConfig()
	cfg.FrameSkip = frameSkip
	return New(det, img, rec, nil, cfg, zerolog.Nop())
}

func TestJoinFragmentsSortsLeftToRight(t *testing.T) {
	frags := []anpr.Fragment{
		{Text: "34", Box: anpr.Box{X1: 80, X2: 120}},
		{Text: "ABC", Box: anpr.Box{X1: 5, X2: 50}},
		{Text: "12", Box: anpr.Box{X1: 55, X2: 78}},
		{Text: "-", Box: anpr.Box{X1: 55, X2: 56}},
	}
	assert.Equal(t, "ABC12-34", JoinFragments(frags))
	assert.Equal(t, "34", frags[0].Text, "input must not be reordered")
	assert.Empty(t, JoinFragments(nil))
}

func TestProcessImage(t *testing.T) {
	det := &fakeDetector{perCall: [][]anpr.Detection{{
		plateAt(100, 100, 0.9),
		plateAt(300, 100, 0.35),
		plateAt(500, 100, 0.2),
		{Box: anpr.Box{X1: 50, Y1: 50, X2: 90, Y2: 90}, Confidence: 0.99, ClassID: 3},
		plateAt(2000, 2000, 0.8),
	}}}
	img := &fakeImaging{}
	rec := &fakeRecognizer{byOrigin: map[image.Point]anpr.Recognition{
		{X: 85, Y: 85}:  text("abc", "12 34"),
		{X: 285, Y: 85}: text("??"),
	}}

	p := newTestPipeline(det, img, rec, 1)
	res := p.ProcessImage(context.Background(), &fakeFrame{w: 1280, h: 720})

	require.Len(t, res.Detections, 3)
	require.Len(t, res.Candidates, 2, "the off-image region is dropped silently")

	assert.Equal(t, "ABC-12-34", res.Candidates[0].FormattedText)
	assert.Equal(t, "abc12 34", res.Candidates[0].RawText)
	assert.Equal(t, "ABC1234", res.Candidates[0].SanitizedText)
	assert.Equal(t, "LLLNNNN", res.Candidates[0].Grammar)
	assert.False(t, res.Candidates[1].Valid())

	plates := res.Plates()
	require.Len(t, plates, 1)
	assert.Equal(t, plates[0].SourceBox, res.Candidates[0].SourceBox)

	require.Len(t, res.Directives, 3)
	assert.Equal(t, anpr.OutcomeSuccess, res.Directives[0].Outcome)
	assert.Equal(t, "ABC-12-34", res.Directives[0].Text)
	assert.Equal(t, anpr.OutcomeFailure, res.Directives[2].Outcome)

	for _, m := range img.masked {
		assert.False(t, m, "batch mode does not mask")
	}
	assert.Zero(t, img.openCount(), "all crops released")
}

func TestProcessImageRecognizerFault(t *testing.T) {
	det := &fakeDetector{perCall: [][]anpr.Detection{{plateAt(100, 100, 0.9)}}}
	rec := &fakeRecognizer{byOrigin: map[image.Point]anpr.Recognition{
		{X: 85, Y: 85}: {Err: fmt.Errorf("%w: boom", anpr.ErrRecognizerFault)},
	}}

	res := newTestPipeline(det, &fakeImaging{}, rec, 1).ProcessImage(context.Background(), &fakeFrame{w: 640, h: 480})

	require.Len(t, res.Candidates, 1)
	assert.False(t, res.Candidates[0].Valid())
	assert.Empty(t, res.Candidates[0].RawText)
}

func TestProcessImageDetectorError(t *testing.T) {
	det := &fakeDetector{err: errors.New("model crashed")}
	res := newTestPipeline(det, &fakeImaging{}, &fakeRecognizer{}, 1).ProcessImage(context.Background(), &fakeFrame{w: 640, h: 480})
	assert.Empty(t, res.Detections)
	assert.Empty(t, res.Candidates)
}

func TestStreamFrameSkip(t *testing.T) {
	det := &fakeDetector{}
	s := newTestPipeline(det, &fakeImaging{}, &fakeRecognizer{}, 5).NewStream()
	defer s.Close()

	var attempted []int64
	for i := 0; i < 12; i++ {
		res := s.Next(context.Background(), &fakeFrame{w: 640, h: 480})
		if res.Attempted {
			attempted = append(attempted, res.Index)
		}
	}
	assert.Equal(t, []int64{5, 10}, attempted)
	assert.Equal(t, 2, det.calls)
}

func TestStreamEarlyExit(t *testing.T) {
	det := &fakeDetector{perCall: [][]anpr.Detection{{
		plateAt(100, 100, 0.95),
		plateAt(300, 100, 0.9),
		plateAt(500, 100, 0.9),
		plateAt(700, 100, 0.5),
	}}}
	img := &fakeImaging{}
	rec := &fakeRecognizer{byOrigin: map[image.Point]anpr.Recognition{
		{X: 75, Y: 75}:  text("garbage"),
		{X: 275, Y: 75}: text("A12", "BCD"),
		{X: 475, Y: 75}: text("ABC1234"),
	}}

	s := newTestPipeline(det, img, rec, 1).NewStream()
	res := s.Next(context.Background(), &fakeFrame{w: 1280, h: 720})

	require.NotNil(t, res.Candidate)
	assert.Equal(t, "A12-BCD", res.Candidate.FormattedText)
	assert.Equal(t, 2, rec.calls, "stops at the first validated region")
	assert.Len(t, res.Detections, 3)
	assert.True(t, res.NewPlate)
	assert.Equal(t, tracker.Holding, res.State.Status)
	assert.Equal(t, plateAt(300, 100, 0).Box, res.State.Plate.Box)

	for _, m := range img.masked {
		assert.True(t, m, "live mode masks the crop")
	}

	crops := s.Crops()
	require.NotNil(t, crops)
	assert.Equal(t, image.Pt(275, 75), crops.Raw.(*fakeFrame).region.Min)
	assert.Equal(t, 2, img.openCount(), "only the last crop pair is held")

	s.Close()
	assert.Zero(t, img.openCount())
}

func TestStreamHoldAndClear(t *testing.T) {
	valid := []anpr.Detection{plateAt(100, 100, 0.9)}
	det := &fakeDetector{perCall: [][]anpr.Detection{valid, nil, nil, valid, nil}}
	rec := &fakeRecognizer{byOrigin: map[image.Point]anpr.Recognition{
		{X: 75, Y: 75}: text("MNR952A"),
	}}
	p := newTestPipeline(det, &fakeImaging{}, rec, 1)
	s := p.NewStream()
	defer s.Close()

	ctx := context.Background()
	frame := &fakeFrame{w: 1280, h: 720}

	r1 := s.Next(ctx, frame)
	assert.Equal(t, "MNR-952-A", r1.State.Plate.Text)
	assert.True(t, r1.NewPlate)

	r2 := s.Next(ctx, frame)
	assert.Equal(t, "MNR-952-A", r2.State.Plate.Text, "no detection keeps the plate")
	assert.False(t, r2.NewPlate)
	require.Len(t, r2.Directives, 2)

	r3 := s.Next(ctx, frame)
	assert.True(t, r3.State.Holding())

	// Same region now reads as noise: detection without a match clears.
	rec.byOrigin[image.Pt(75, 75)] = text("XX")
	r4 := s.Next(ctx, frame)
	assert.Equal(t, tracker.Empty, r4.State.Status)
	require.Len(t, r4.Directives, 1)
	assert.Equal(t, anpr.OutcomeFailure, r4.Directives[0].Outcome)

	r5 := s.Next(ctx, frame)
	assert.Equal(t, tracker.Empty, r5.State.Status)
	assert.Empty(t, r5.Directives)
}

func TestStreamEmptyRegionIsNotADetection(t *testing.T) {
	det := &fakeDetector{perCall: [][]anpr.Detection{
		{plateAt(100, 100, 0.9)},
		{plateAt(5000, 5000, 0.9)},
	}}
	rec := &fakeRecognizer{byOrigin: map[image.Point]anpr.Recognition{
		{X: 75, Y: 75}: text("ABC1234"),
	}}
	s := newTestPipeline(det, &fakeImaging{}, rec, 1).NewStream()
	defer s.Close()

	s.Next(context.Background(), &fakeFrame{w: 640, h: 480})
	res := s.Next(context.Background(), &fakeFrame{w: 640, h: 480})

	assert.Len(t, res.Detections, 1)
	assert.True(t, res.State.Holding(), "a region clamped to nothing does not clear the plate")
	assert.Equal(t, "ABC-12-34", res.State.Plate.Text)
}

func TestStreamCropFailure(t *testing.T) {
	det := &fakeDetector{perCall: [][]anpr.Detection{{plateAt(100, 100, 0.9)}}}
	s := newTestPipeline(det, &fakeImaging{failCrop: true}, &fakeRecognizer{}, 1).NewStream()
	defer s.Close()

	res := s.Next(context.Background(), &fakeFrame{w: 640, h: 480})
	assert.Nil(t, res.Candidate)
	assert.Nil(t, s.Crops())
	assert.Empty(t, res.Directives)
}
