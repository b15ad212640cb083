package vision

import (
	"context"
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"anpr-pipeline/internal/detection"
	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/pipeline"
)

type DetectorConfig struct {
	ModelPath    string
	InputSize    int
	MinScore     float64
	NMSThreshold float64
}

// YOLODetector runs a YOLOv8 ONNX export through the OpenCV dnn module.
// A gocv.Net is not safe for concurrent use; callers serialize Detect.
type YOLODetector struct {
	net gocv.Net
	cfg DetectorConfig
}

func NewYOLODetector(cfg DetectorConfig) (*YOLODetector, error) {
	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	net := gocv.ReadNet(cfg.ModelPath, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load detection model %s", cfg.ModelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		_ = net.Close()
		return nil, fmt.Errorf("failed to set dnn backend: %w", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		_ = net.Close()
		return nil, fmt.Errorf("failed to set dnn target: %w", err)
	}
	return &YOLODetector{net: net, cfg: cfg}, nil
}

func (d *YOLODetector) Close() error {
	return d.net.Close()
}

func (d *YOLODetector) Detect(ctx context.Context, f pipeline.Frame) ([]anpr.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := asMat(f)
	if err != nil {
		return nil, err
	}

	size := d.cfg.InputSize
	blob := gocv.BlobFromImage(m.mat, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	out := d.net.Forward("")
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected detector output dims %v", dims)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read detector output: %w", err)
	}

	dec := detection.Decoder{
		ScaleX:       float64(m.Width()) / float64(size),
		ScaleY:       float64(m.Height()) / float64(size),
		MinScore:     d.cfg.MinScore,
		NMSThreshold: d.cfg.NMSThreshold,
	}
	return dec.Decode(detection.YOLOOutput{Data: data, Channels: dims[1], Anchors: dims[2]})
}
