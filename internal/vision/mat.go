// Package vision holds the OpenCV-backed collaborators of the pipeline:
// image I/O, crop preprocessing, the plate detector and frame annotation.
package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"anpr-pipeline/internal/pipeline"
)

// Mat adapts a gocv.Mat to pipeline.Image. The Mat owns its native memory.
type Mat struct {
	mat gocv.Mat
}

func Wrap(m gocv.Mat) *Mat {
	return &Mat{mat: m}
}

func (m *Mat) Width() int  { return m.mat.Cols() }
func (m *Mat) Height() int { return m.mat.Rows() }

func (m *Mat) Close() error {
	return m.mat.Close()
}

// Native exposes the underlying Mat; the caller must not close it.
func (m *Mat) Native() *gocv.Mat {
	return &m.mat
}

func asMat(f pipeline.Frame) (*Mat, error) {
	m, ok := f.(*Mat)
	if !ok {
		return nil, fmt.Errorf("vision: unsupported frame type %T", f)
	}
	if m.mat.Empty() {
		return nil, fmt.Errorf("vision: empty frame")
	}
	return m, nil
}

// LoadImage reads a color image from disk.
func LoadImage(path string) (*Mat, error) {
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		_ = m.Close()
		return nil, fmt.Errorf("failed to read image %s", path)
	}
	return Wrap(m), nil
}

// Decoder decodes encoded image bytes (PNG, JPEG, ...) into frames.
type Decoder struct{}

func (Decoder) Decode(data []byte) (pipeline.Image, error) {
	m, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if m.Empty() {
		_ = m.Close()
		return nil, fmt.Errorf("failed to decode image: empty result")
	}
	return Wrap(m), nil
}

// WriteImage encodes frame to path; the format follows the file extension.
func WriteImage(path string, f pipeline.Frame) error {
	m, err := asMat(f)
	if err != nil {
		return err
	}
	if !gocv.IMWrite(path, m.mat) {
		return fmt.Errorf("failed to write image %s", path)
	}
	return nil
}

// EncodePNG returns frame as PNG bytes.
func EncodePNG(f pipeline.Frame) ([]byte, error) {
	m, err := asMat(f)
	if err != nil {
		return nil, err
	}
	buf, err := gocv.IMEncode(gocv.PNGFileExt, m.mat)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func bounds(m *Mat) image.Rectangle {
	return image.Rect(0, 0, m.Width(), m.Height())
}
