package pipeline

import (
	"fmt"
	"time"

	"github.com/tractstream/tractstream/pkg/projection"
)

// AudioData is a chunk of captured audio.
type AudioData struct {
	// Samples are mono PCM float samples in [-1, 1].
	Samples    []float32
	SampleRate int
	Channels   int
	MediaType  AudioMediaType
	Timestamp  time.Time
}

// FeatureData is one published feature frame: the articulatory positions
// estimated for the current audio window plus pitch and loudness.
type FeatureData struct {
	Frame        projection.ArticulatoryFrame
	PitchHz      float64
	LoudnessDbfs float64

	// Fallback marks a frame that was substituted because the extraction
	// cycle could not produce a real one (admission rejection, inference
	// error, or timeout). A Fallback frame with PitchHz == 0 is not the
	// same signal as a real frame with PitchHz == 0 (unvoiced).
	Fallback bool

	// Demo marks a synthetic frame produced by the demo source while the
	// pipeline is not yet running.
	Demo bool

	// Seq is the tick sequence number that produced this frame.
	Seq       uint64
	Timestamp time.Time
}

type PipelineMessageType int

const (
	MsgTypeAudio PipelineMessageType = iota
	MsgTypeFeature
	MsgTypeCommand
)

type PipelineMessage struct {
	Type PipelineMessageType

	// SessionID identifies the capture session the message belongs to.
	SessionID string
	Timestamp time.Time

	// AudioData carries captured audio chunks (MsgTypeAudio).
	AudioData *AudioData

	// FeatureData carries extracted feature frames (MsgTypeFeature).
	FeatureData *FeatureData

	// Metadata carries auxiliary data.
	Metadata interface{}
}

func (p *PipelineMessage) String() string {
	return fmt.Sprintf("PipelineMessage{Type: %d, SessionID: %s, Timestamp: %s}", p.Type, p.SessionID, p.Timestamp)
}
