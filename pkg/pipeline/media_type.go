package pipeline

// AudioMediaType represents the media type for audio data
type AudioMediaType string

const (
	// Raw PCM audio (default)
	AudioMediaTypeRaw AudioMediaType = "audio/x-raw"
	// PCM audio format
	AudioMediaTypePCM AudioMediaType = "audio/pcm"
	// WAV audio format
	AudioMediaTypeWAV AudioMediaType = "audio/wav"
)

// String returns the string representation of AudioMediaType
func (amt AudioMediaType) String() string {
	return string(amt)
}
