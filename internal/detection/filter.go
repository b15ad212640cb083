// Package detection selects plate regions from raw detector output.
package detection

import (
	"errors"
	"fmt"
	"image"

	"anpr-pipeline/internal/domain/anpr"
)

// ErrEmptyRegion is returned when a padded, clamped region has no area.
var ErrEmptyRegion = errors.New("empty region")

// PlateClass is the class id the plate detector assigns to license plates.
const PlateClass = 0

// Mode holds the operating point for one kind of input.
type Mode struct {
	Name      string
	Threshold float64
	Padding   int
	// EarlyExit stops at the first region that yields a valid plate.
	EarlyExit bool
	// ROIMask restricts recognition to the central band of the crop.
	ROIMask bool
}

var (
	Batch = Mode{Name: "batch", Threshold: 0.3, Padding: 15}
	Live  = Mode{Name: "live", Threshold: 0.7, Padding: 25, EarlyExit: true, ROIMask: true}
)

// Filter keeps plate-class detections at or above a confidence threshold.
type Filter struct {
	ClassID   int
	Threshold float64
}

func NewFilter(classID int, threshold float64) Filter {
	return Filter{ClassID: classID, Threshold: threshold}
}

// Accept returns the detections that pass, in detector order.
func (f Filter) Accept(detections []anpr.Detection) []anpr.Detection {
	accepted := make([]anpr.Detection, 0, len(detections))
	for _, d := range detections {
		if d.ClassID != f.ClassID || d.Confidence < f.Threshold {
			continue
		}
		accepted = append(accepted, d)
	}
	return accepted
}

// Region expands box by padding pixels on every side and clamps it to a
// width x height image.
func Region(box anpr.Box, padding, width, height int) (image.Rectangle, error) {
	r := image.Rect(box.X1-padding, box.Y1-padding, box.X2+padding, box.Y2+padding)
	r = r.Intersect(image.Rect(0, 0, width, height))
	if r.Empty() {
		return image.Rectangle{}, fmt.Errorf("%w: box %v in %dx%d", ErrEmptyRegion, box, width, height)
	}
	return r, nil
}
