package overlay

import (
	"image"
	"image/color"
)

// Canvas is the 2-D drawing surface the overlay is painted on. It is sized to
// the video's intrinsic dimensions and draws in video pixel coordinates.
type Canvas interface {
	Resize(width, height int)
	Size() (width, height int)
	DrawFrame(frame image.Image)
	StrokeRect(x, y, w, h, lineWidth float64, c color.Color)
	FillText(text string, x, y float64, c color.Color)
	FillCircle(cx, cy, r float64, c color.Color)
}

var (
	// FallbackColor is used for tracks the pipeline did not color.
	FallbackColor = color.RGBA{R: 128, G: 128, B: 128, A: 255}

	// MarkerColor fills the possession marker.
	MarkerColor = color.RGBA{R: 255, A: 255}
)

const (
	boxLineWidth = 2
	labelOffsetY = 15
	markerRadius = 8
	markerLiftY  = 10
)

// Renderer paints one frame's tracks over the video frame.
type Renderer struct {
	canvas Canvas
}

// NewRenderer returns a Renderer drawing on canvas.
func NewRenderer(canvas Canvas) *Renderer {
	return &Renderer{canvas: canvas}
}

// Resize sizes the canvas to the media's intrinsic dimensions.
func (r *Renderer) Resize(width, height int) {
	r.canvas.Resize(width, height)
}

// Render blits frame and draws every track in order, so later tracks cover
// earlier ones. The possessing player, if any, gets a single red marker above
// its box.
func (r *Renderer) Render(frame image.Image, tracks []Track) {
	if frame != nil {
		r.canvas.DrawFrame(frame)
	}

	possessor, hasPossessor := PossessingPlayer(tracks)
	marked := false

	for _, t := range tracks {
		if len(t.BBox) != 4 {
			continue
		}
		x1, y1, x2, y2 := t.BBox[0], t.BBox[1], t.BBox[2], t.BBox[3]
		c := trackColor(t)

		r.canvas.StrokeRect(x1, y1, x2-x1, y2-y1, boxLineWidth, c)
		r.canvas.FillText(t.Label(), x1, y2+labelOffsetY, c)

		if hasPossessor && !marked && t.Class == ClassPlayer && t.ID == possessor {
			r.canvas.FillCircle((x1+x2)/2, y1-markerLiftY, markerRadius, MarkerColor)
			marked = true
		}
	}
}

// PossessingPlayer returns the player id named by the first ball track that
// carries possession. A ball whose possessed_by is null still decides: nobody
// has the ball, and later ball tracks are not consulted.
func PossessingPlayer(tracks []Track) (int, bool) {
	for _, t := range tracks {
		if t.Class != ClassBall || (!t.HasPossession && t.PossessedBy == nil) {
			continue
		}
		if t.PossessedBy == nil {
			return 0, false
		}
		return *t.PossessedBy, true
	}
	return 0, false
}

func trackColor(t Track) color.Color {
	if t.Color == nil {
		return FallbackColor
	}
	return color.RGBA{R: t.Color[0], G: t.Color[1], B: t.Color[2], A: 255}
}
