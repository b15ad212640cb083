package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"anpr-pipeline/internal/pipeline"
)

// ROI is the fraction of a crop kept when masking: the central band that
// excludes mounting hardware and the plate frame.
type ROI struct {
	Left, Right, Top, Bottom float64
}

var DefaultROI = ROI{Left: 0.05, Right: 0.95, Top: 0.05, Bottom: 0.65}

// Rect returns the ROI in pixels for a w x h crop.
func (r ROI) Rect(w, h int) image.Rectangle {
	return image.Rect(
		int(float64(w)*r.Left),
		int(float64(h)*r.Top),
		int(float64(w)*r.Right),
		int(float64(h)*r.Bottom),
	)
}

// Imaging crops and binarizes plate regions with OpenCV.
type Imaging struct {
	ROI         ROI
	BlurSize    int
	CloseKernel image.Point
}

func NewImaging() *Imaging {
	return &Imaging{
		ROI:         DefaultROI,
		BlurSize:    3,
		CloseKernel: image.Pt(2, 2),
	}
}

func (im *Imaging) Crop(f pipeline.Frame, region image.Rectangle) (pipeline.Image, error) {
	m, err := asMat(f)
	if err != nil {
		return nil, err
	}
	region = region.Intersect(bounds(m))
	if region.Empty() {
		return nil, fmt.Errorf("vision: crop %v outside %dx%d", region, m.Width(), m.Height())
	}

	view := m.mat.Region(region)
	defer view.Close()
	return Wrap(view.Clone()), nil
}

// Binarize runs grayscale, median blur, inverted Otsu threshold and a
// morphological close, then re-expands the result to three channels.
func (im *Imaging) Binarize(f pipeline.Frame, roiMask bool) (pipeline.Image, error) {
	m, err := asMat(f)
	if err != nil {
		return nil, err
	}

	src := m.mat
	if roiMask {
		masked := im.mask(m)
		defer masked.Close()
		src = masked
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if src.Channels() == 1 {
		src.CopyTo(&gray)
	} else {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	}
	gocv.MedianBlur(gray, &gray, im.BlurSize)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(gray, &binary, 0, 255, gocv.ThresholdBinaryInv|gocv.ThresholdOtsu)

	kernel := gocv.GetStructuringElement(gocv.MorphRect, im.CloseKernel)
	defer kernel.Close()
	gocv.MorphologyEx(binary, &binary, gocv.MorphClose, kernel)

	out := gocv.NewMat()
	gocv.CvtColor(binary, &out, gocv.ColorGrayToBGR)
	return Wrap(out), nil
}

// mask blanks everything outside the ROI band.
func (im *Imaging) mask(m *Mat) gocv.Mat {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), m.Height(), m.Width(), m.mat.Type())
	defer mask.Close()
	gocv.Rectangle(&mask, im.ROI.Rect(m.Width(), m.Height()), color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	out := gocv.NewMat()
	gocv.BitwiseAnd(m.mat, mask, &out)
	return out
}
