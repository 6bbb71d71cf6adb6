// Package projection maps high-dimensional embedding frames to 2D
// articulator positions through a fixed affine model loaded from a JSON
// weights file.
package projection

import (
	"fmt"
	"math"
)

// Articulator identifies an anatomical point of the vocal tract.
type Articulator string

const (
	UpperLip     Articulator = "ul"
	LowerLip     Articulator = "ll"
	LipIncisor   Articulator = "li"
	TongueTip    Articulator = "tt"
	TongueBlade  Articulator = "tb"
	TongueDorsum Articulator = "td"
)

// articulatorOrder is the positional layout of the projected vector:
// [ul.x, ul.y, ll.x, ll.y, li.x, li.y, tt.x, tt.y, tb.x, tb.y, td.x, td.y].
// This ordering is a contract with the external weights file and must not
// be permuted.
var articulatorOrder = [6]Articulator{
	UpperLip, LowerLip, LipIncisor, TongueTip, TongueBlade, TongueDorsum,
}

// Articulators returns the articulator keys in vector order.
func Articulators() []Articulator {
	return append([]Articulator(nil), articulatorOrder[:]...)
}

// VectorDim is the projected vector length: 6 articulators x {x, y}.
const VectorDim = len(articulatorOrder) * 2

// Point is a 2D articulator position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ArticulatoryFrame maps each articulator to its estimated position.
type ArticulatoryFrame map[Articulator]Point

// Clone returns a copy of the frame.
func (f ArticulatoryFrame) Clone() ArticulatoryFrame {
	out := make(ArticulatoryFrame, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// FrameFromVector lays out a projected vector as an articulatory frame.
// Non-finite coordinates are replaced with 0 rather than discarding the
// whole frame; the count of repaired coordinates is returned so the caller
// can log it.
func FrameFromVector(v []float64) (ArticulatoryFrame, int, error) {
	if len(v) != VectorDim {
		return nil, 0, fmt.Errorf("vector has %d components, want %d", len(v), VectorDim)
	}

	repaired := 0
	frame := make(ArticulatoryFrame, len(articulatorOrder))
	for i, art := range articulatorOrder {
		x := v[2*i]
		y := v[2*i+1]
		if math.IsNaN(x) || math.IsInf(x, 0) {
			x = 0
			repaired++
		}
		if math.IsNaN(y) || math.IsInf(y, 0) {
			y = 0
			repaired++
		}
		frame[art] = Point{X: x, Y: y}
	}
	return frame, repaired, nil
}

// VectorFromFrame is the inverse layout, used by the smoothing path.
func VectorFromFrame(f ArticulatoryFrame) []float64 {
	v := make([]float64, VectorDim)
	for i, art := range articulatorOrder {
		p := f[art]
		v[2*i] = p.X
		v[2*i+1] = p.Y
	}
	return v
}
