package ocr

import (
	"errors"
	"image"
	"testing"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"anpr-pipeline/internal/domain/anpr"
)

func TestToFragments(t *testing.T) {
	boxes := []gosseract.BoundingBox{
		{Box: image.Rect(60, 4, 110, 30), Word: " 1234 ", Confidence: 88},
		{Box: image.Rect(5, 4, 50, 30), Word: "ABC", Confidence: 91},
		{Box: image.Rect(0, 0, 3, 3), Word: "  ", Confidence: 10},
	}

	got := toFragments(boxes)
	require.Len(t, got, 2)
	assert.Equal(t, "1234", got[0].Text)
	assert.Equal(t, anpr.Box{X1: 60, Y1: 4, X2: 110, Y2: 30}, got[0].Box)
	assert.Equal(t, 5, got[1].MinX())
}

func TestFault(t *testing.T) {
	rec := fault(errors.New("tesseract died"))
	assert.True(t, rec.Faulted())
	assert.True(t, errors.Is(rec.Err, anpr.ErrRecognizerFault))
	assert.Empty(t, rec.Fragments)
}
