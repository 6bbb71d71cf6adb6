package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Pipeline attributes
	AttrSessionID = "session.id"
	AttrTickSeq   = "tick.seq"

	// Audio attributes
	AttrAudioSampleRate = "audio.sample_rate"
	AttrAudioWindowSize = "audio.window_size"

	// Embedding attributes
	AttrEmbeddingFrames   = "embedding.frames"
	AttrEmbeddingChannels = "embedding.channels"

	// Feature attributes
	AttrPitchHz      = "feature.pitch_hz"
	AttrLoudnessDbfs = "feature.loudness_dbfs"
	AttrFallback     = "feature.fallback"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// SessionAttrs creates attributes for session information
func SessionAttrs(sessionID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
	}
}

// AudioAttrs creates attributes for an audio window
func AudioAttrs(sampleRate, windowSize int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrAudioSampleRate, sampleRate),
		attribute.Int(AttrAudioWindowSize, windowSize),
	}
}

// EmbeddingAttrs creates attributes for an embedding tensor
func EmbeddingAttrs(frames, channels int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrEmbeddingFrames, frames),
		attribute.Int(AttrEmbeddingChannels, channels),
	}
}
