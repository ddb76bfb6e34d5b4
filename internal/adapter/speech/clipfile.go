package speech

import (
	"fmt"
	"os"

	"voicebot/internal/domain"
)

// withTempClip writes clip into a fresh temp file under dir, hands fn the file
// rewound to the start, and removes the file on every exit path.
func withTempClip(dir string, clip domain.AudioClip, fn func(f *os.File) error) error {
	f, err := os.CreateTemp(dir, "clip-*"+extFor(clip.Format))
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if _, err := f.Write(clip.Data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("rewind temp file: %w", err)
	}
	return fn(f)
}

// WriteClip stores clip under dir with a unique name and returns its path.
// A partially written file is removed.
func WriteClip(dir, prefix string, clip domain.AudioClip) (string, error) {
	if clip.Empty() {
		return "", fmt.Errorf("write clip: %w: empty audio", domain.ErrInvalidInput)
	}
	f, err := os.CreateTemp(dir, prefix+"-*"+extFor(clip.Format))
	if err != nil {
		return "", fmt.Errorf("create clip file: %w", err)
	}
	if _, err := f.Write(clip.Data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write clip file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close clip file: %w", err)
	}
	return f.Name(), nil
}

// extFor maps an audio format to a file extension the backends recognise.
func extFor(format string) string {
	switch format {
	case domain.AudioFormatMP3:
		return ".mp3"
	case domain.AudioFormatWAV:
		return ".wav"
	case "":
		return ".mp3"
	default:
		return "." + format
	}
}
