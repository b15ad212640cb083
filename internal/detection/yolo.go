package detection

import (
	"fmt"
	"image"
	"sort"

	"anpr-pipeline/internal/domain/anpr"
)

// YOLOOutput describes a raw [1, 4+classes, anchors] YOLOv8 head output laid
// out row-major: data[c*Anchors+i] is channel c of anchor i. Channels 0..3
// are cx, cy, w, h in model input pixels.
type YOLOOutput struct {
	Data     []float32
	Channels int
	Anchors  int
}

// Decoder turns raw model output into detections in image coordinates.
type Decoder struct {
	// ScaleX and ScaleY map model input pixels to image pixels.
	ScaleX, ScaleY float64
	// MinScore drops anchors before NMS. Keep it at or below the lowest
	// threshold any Filter will apply.
	MinScore     float64
	NMSThreshold float64
}

// Decode returns detections after per-class NMS, ordered by descending score.
func (d Decoder) Decode(out YOLOOutput) ([]anpr.Detection, error) {
	if out.Channels < 5 || out.Anchors <= 0 {
		return nil, fmt.Errorf("unexpected output shape [1, %d, %d]", out.Channels, out.Anchors)
	}
	if len(out.Data) < out.Channels*out.Anchors {
		return nil, fmt.Errorf("output has %d values, want %d", len(out.Data), out.Channels*out.Anchors)
	}

	at := func(c, i int) float64 {
		return float64(out.Data[c*out.Anchors+i])
	}

	var raw []anpr.Detection
	for i := 0; i < out.Anchors; i++ {
		best, class := 0.0, -1
		for c := 4; c < out.Channels; c++ {
			if s := at(c, i); s > best {
				best, class = s, c-4
			}
		}
		if class < 0 || best < d.MinScore {
			continue
		}

		cx, cy, w, h := at(0, i), at(1, i), at(2, i), at(3, i)
		raw = append(raw, anpr.Detection{
			Box: anpr.Box{
				X1: int((cx - w/2) * d.ScaleX),
				Y1: int((cy - h/2) * d.ScaleY),
				X2: int((cx + w/2) * d.ScaleX),
				Y2: int((cy + h/2) * d.ScaleY),
			},
			Confidence: best,
			ClassID:    class,
		})
	}

	return NMS(raw, d.NMSThreshold), nil
}

// NMS suppresses same-class detections overlapping a higher-scored one by
// more than iouThreshold. The result is ordered by descending confidence.
func NMS(detections []anpr.Detection, iouThreshold float64) []anpr.Detection {
	sorted := make([]anpr.Detection, len(detections))
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]anpr.Detection, 0, len(sorted))
	for _, cand := range sorted {
		suppressed := false
		for _, k := range kept {
			if k.ClassID == cand.ClassID && IoU(k.Box, cand.Box) > iouThreshold {
				suppressed = true
				break
			}
		}
		if !suppressed {
			kept = append(kept, cand)
		}
	}
	return kept
}

// IoU is the intersection over union of two boxes.
func IoU(a, b anpr.Box) float64 {
	ra, rb := a.Rect(), b.Rect()
	inter := ra.Intersect(rb)
	if inter.Empty() {
		return 0
	}
	ia := area(inter)
	union := area(ra) + area(rb) - ia
	if union <= 0 {
		return 0
	}
	return float64(ia) / float64(union)
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}
