// Package capture loads, saves and annotates the images of graded answer sheets.
package capture

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/pavelanni/omrgrade/internal/model"
)

// Placeholder size, used when a capture file is missing.
const (
	placeholderWidth  = 640
	placeholderHeight = 480
)

var (
	colorCorrect   = color.NRGBA{R: 0, G: 170, B: 0, A: 255}
	colorIncorrect = color.NRGBA{R: 220, G: 0, B: 0, A: 255}
	colorFilled    = color.NRGBA{R: 0, G: 90, B: 220, A: 255}
	colorSolution  = color.NRGBA{R: 240, G: 200, B: 0, A: 255}
	colorIDCell    = color.NRGBA{R: 120, G: 120, B: 120, A: 255}
)

// Verdict tells whether the canonical choice behind a presented cell is correct.
// It reports ok=false for void or unknown questions.
type Verdict func(row, choice int) (correct, ok bool)

// Load reads an image file.
func Load(path string) (image.Image, error) {
	return imaging.Open(path)
}

// Save writes an image; the format follows the file extension.
func Save(path string, img image.Image) error {
	return imaging.Save(img, path)
}

// Placeholder is shown in place of a capture whose file is missing.
func Placeholder() image.Image {
	return imaging.New(placeholderWidth, placeholderHeight, color.NRGBA{R: 200, G: 200, B: 200, A: 255})
}

// Annotate draws the grading decisions over a copy of the raw capture: filled
// cells in green or red, unmarked solutions in yellow, ID cells in gray.
func Annotate(raw image.Image, cells [][]model.AnswerCell, idCells []model.IDCell, verdict Verdict) *image.NRGBA {
	out := imaging.Clone(raw)
	for row, choices := range cells {
		for choice, cell := range choices {
			c, draw := cellColor(row, choice, cell, verdict)
			if !draw {
				continue
			}
			out = mark(out, cell.Center, max(cell.Diagonal/3, 2), c)
		}
	}
	for _, cell := range idCells {
		center := model.Point{
			X: (cell.Corners[0].X + cell.Corners[3].X) / 2,
			Y: (cell.Corners[0].Y + cell.Corners[3].Y) / 2,
		}
		out = mark(out, center, 2, colorIDCell)
	}
	return out
}

func cellColor(row, choice int, cell model.AnswerCell, verdict Verdict) (color.NRGBA, bool) {
	var correct, known bool
	if verdict != nil {
		correct, known = verdict(row, choice)
	}
	switch {
	case cell.Filled && !known:
		return colorFilled, true
	case cell.Filled && correct:
		return colorCorrect, true
	case cell.Filled:
		return colorIncorrect, true
	case known && correct:
		return colorSolution, true
	}
	return color.NRGBA{}, false
}

// mark overlays a half-transparent square of the given half-size at center.
func mark(img *image.NRGBA, center model.Point, half int, c color.NRGBA) *image.NRGBA {
	square := imaging.New(2*half, 2*half, c)
	return imaging.Overlay(img, square, image.Pt(center.X-half, center.Y-half), 0.5)
}
