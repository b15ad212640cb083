package vision

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"anpr-pipeline/internal/domain/anpr"
	"anpr-pipeline/internal/pipeline"
)

var (
	SuccessColor = color.RGBA{R: 0, G: 150, B: 0, A: 255}
	FailureColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	LabelColor   = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	labelHeight    = 30
	labelMinWidth  = 250
	labelFontScale = 0.9
	boxThickness   = 2
)

// Draw renders directives onto frame in place.
func Draw(f pipeline.Frame, directives []anpr.Directive) error {
	m, err := asMat(f)
	if err != nil {
		return err
	}
	for _, d := range directives {
		c := FailureColor
		if d.Outcome == anpr.OutcomeSuccess {
			c = SuccessColor
		}
		r := d.Box.Rect()

		switch d.Kind {
		case anpr.DirectiveBox:
			gocv.Rectangle(&m.mat, r, c, boxThickness)
		case anpr.DirectiveLabel:
			width := r.Dx()
			if width < labelMinWidth {
				width = labelMinWidth
			}
			bg := image.Rect(r.Min.X, r.Min.Y-labelHeight, r.Min.X+width, r.Min.Y)
			gocv.Rectangle(&m.mat, bg, c, -1)
			gocv.PutText(&m.mat, d.Text, image.Pt(r.Min.X, r.Min.Y-10), gocv.FontHersheySimplex, labelFontScale, LabelColor, 2)
		}
	}
	return nil
}
