package extractor

import (
	"math"
	"time"

	"github.com/tractstream/tractstream/pkg/projection"
)

// demoRest holds the neutral articulator positions the demo motion
// oscillates around, roughly a relaxed mid-sagittal posture.
var demoRest = projection.ArticulatoryFrame{
	projection.UpperLip:     {X: -1.2, Y: 1.0},
	projection.LowerLip:     {X: -1.2, Y: -0.6},
	projection.LipIncisor:   {X: -1.0, Y: 0.2},
	projection.TongueTip:    {X: -0.4, Y: -0.2},
	projection.TongueBlade:  {X: 0.4, Y: 0.1},
	projection.TongueDorsum: {X: 1.2, Y: 0.3},
}

// demoMotion gives each articulator its own oscillation rate and amplitude
// so the idle animation reads as speech-like rather than rigid.
var demoMotion = map[projection.Articulator]struct {
	rateHz float64
	ampX   float64
	ampY   float64
	phase  float64
}{
	projection.UpperLip:     {rateHz: 1.1, ampX: 0.05, ampY: 0.10, phase: 0},
	projection.LowerLip:     {rateHz: 1.1, ampX: 0.05, ampY: 0.30, phase: math.Pi},
	projection.LipIncisor:   {rateHz: 1.1, ampX: 0.03, ampY: 0.15, phase: math.Pi},
	projection.TongueTip:    {rateHz: 1.7, ampX: 0.25, ampY: 0.35, phase: 0.5},
	projection.TongueBlade:  {rateHz: 1.4, ampX: 0.20, ampY: 0.25, phase: 1.2},
	projection.TongueDorsum: {rateHz: 0.9, ampX: 0.15, ampY: 0.20, phase: 2.1},
}

// DemoSource generates bounded sinusoidal articulator motion for display
// while the real pipeline is not producing frames. It is selected only by
// the coordinator's state machine, never interleaved with live output.
type DemoSource struct {
	start time.Time
}

// NewDemoSource creates a demo source anchored at now.
func NewDemoSource() *DemoSource {
	return &DemoSource{start: time.Now()}
}

// Frame returns the synthetic articulatory frame for the given instant.
func (d *DemoSource) Frame(now time.Time) projection.ArticulatoryFrame {
	t := now.Sub(d.start).Seconds()

	frame := make(projection.ArticulatoryFrame, len(demoRest))
	for art, rest := range demoRest {
		m := demoMotion[art]
		w := 2 * math.Pi * m.rateHz * t
		frame[art] = projection.Point{
			X: rest.X + m.ampX*math.Sin(w+m.phase),
			Y: rest.Y + m.ampY*math.Sin(w+m.phase+math.Pi/3),
		}
	}
	return frame
}
