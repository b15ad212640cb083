// Package ocr provides the text recognizer used on binarized plate crops.
package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/pipeline"
)

// PlateChars restricts recognition to what can appear on a plate.
const PlateChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type Config struct {
	Language  string
	Whitelist string
}

// Encoder turns a crop into image bytes Tesseract can read.
type Encoder func(pipeline.Frame) ([]byte, error)

// TesseractRecognizer reads word-level fragments with their boxes.
type TesseractRecognizer struct {
	mu     sync.Mutex
	client *gosseract.Client
	encode Encoder
}

func NewTesseractRecognizer(cfg Config, encode Encoder) (*TesseractRecognizer, error) {
	client := gosseract.NewClient()

	lang := cfg.Language
	if lang == "" {
		lang = "eng"
	}
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Plates are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}

	whitelist := cfg.Whitelist
	if whitelist == "" {
		whitelist = PlateChars
	}
	if err := client.SetWhitelist(whitelist); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}

	return &TesseractRecognizer{client: client, encode: encode}, nil
}

func (r *TesseractRecognizer) Close() error {
	return r.client.Close()
}

// Recognize never returns an error; faults are reported in the result.
func (r *TesseractRecognizer) Recognize(ctx context.Context, crop pipeline.Frame) anpr.Recognition {
	if err := ctx.Err(); err != nil {
		return fault(err)
	}

	data, err := r.encode(crop)
	if err != nil {
		return fault(err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(data); err != nil {
		return fault(fmt.Errorf("failed to set image: %w", err))
	}

	boxes, err := r.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return fault(fmt.Errorf("failed to get boxes: %w", err))
	}

	return anpr.Recognition{Fragments: toFragments(boxes)}
}

func toFragments(boxes []gosseract.BoundingBox) []anpr.Fragment {
	fragments := make([]anpr.Fragment, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		fragments = append(fragments, anpr.Fragment{
			Text:       text,
			Box:        anpr.BoxFromRect(box.Box),
			Confidence: box.Confidence,
		})
	}
	return fragments
}

func fault(err error) anpr.Recognition {
	return anpr.Recognition{Err: fmt.Errorf("%w: %v", anpr.ErrRecognizerFault, err)}
}
