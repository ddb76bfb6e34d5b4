package domain

import "context"

// Audio container formats understood by the speech adapters.
const (
	AudioFormatMP3 = "mp3"
	AudioFormatWAV = "wav"
)

// AudioClip is a short recorded or synthesized audio payload.
type AudioClip struct {
	Data   []byte `json:"data"`
	Format string `json:"format"`
}

// Empty reports whether the clip carries no audio.
func (c AudioClip) Empty() bool { return len(c.Data) == 0 }

// Transcriber converts a spoken clip into text.
type Transcriber interface {
	Transcribe(ctx context.Context, clip AudioClip) (string, error)
	Name() string
}

// Synthesizer converts text into a playable clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (AudioClip, error)
	Name() string
}
