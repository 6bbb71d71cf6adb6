package audio

import "math"

// LoudnessFloor is the dBFS value reported for silent input, used instead
// of -Inf so downstream consumers stay numerically sane.
const LoudnessFloor = -60.0

// Loudness computes the RMS level of the samples in dBFS.
// An empty or all-zero buffer returns LoudnessFloor.
func Loudness(samples []float32) float64 {
	if len(samples) == 0 {
		return LoudnessFloor
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	rms := math.Sqrt(sum / float64(len(samples)))
	if rms == 0 {
		return LoudnessFloor
	}

	return 20 * math.Log10(rms)
}
