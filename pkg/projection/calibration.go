package projection

// Calibration is an optional display adjustment applied after projection
// and smoothing: a global sensitivity multiplier and per-articulator
// offsets. It never changes the projection itself.
type Calibration struct {
	Sensitivity float64
	Offsets     map[Articulator]Point
}

// DefaultCalibration returns the identity calibration.
func DefaultCalibration() Calibration {
	return Calibration{Sensitivity: 1}
}

// Apply returns a calibrated copy of the frame.
func (c Calibration) Apply(frame ArticulatoryFrame) ArticulatoryFrame {
	sens := c.Sensitivity
	if sens == 0 {
		sens = 1
	}

	out := make(ArticulatoryFrame, len(frame))
	for art, p := range frame {
		off := c.Offsets[art]
		out[art] = Point{
			X: p.X*sens + off.X,
			Y: p.Y*sens + off.Y,
		}
	}
	return out
}
