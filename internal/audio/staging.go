// Package audio stages incoming clips on disk for the transcriber.
// Uploads are copied to a temp file as-is; raw microphone PCM is
// wrapped into a WAV container first.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"strings"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrTooLarge is returned when an upload exceeds the configured cap.
var ErrTooLarge = errors.New("audio upload exceeds size limit")

// Staged is a temp file holding the session's input audio. Remove is
// idempotent so cleanup can run on every exit path.
type Staged struct {
	Path     string
	MimeType string
	Filename string
	Size     int64

	removed bool
}

var extByMime = map[string]string{
	"audio/mpeg":  ".mp3",
	"audio/mp3":   ".mp3",
	"audio/wav":   ".wav",
	"audio/wave":  ".wav",
	"audio/x-wav": ".wav",
	"audio/ogg":   ".ogg",
	"audio/webm":  ".webm",
}

// SupportedMime reports whether the declared content type is one the
// workflow accepts.
func SupportedMime(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	_, ok := extByMime[mt]
	return ok
}

// StageUpload copies an uploaded clip into a temp file under dir
// (os.TempDir when empty). The reader is capped at maxBytes; anything
// longer fails with ErrTooLarge and leaves no file behind.
func StageUpload(dir, filename, contentType string, r io.Reader, maxBytes int64) (*Staged, error) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("parse audio content type: %w", err)
	}
	ext, ok := extByMime[mt]
	if !ok {
		return nil, fmt.Errorf("unsupported audio type %q", mt)
	}

	if dir == "" {
		dir = os.TempDir()
	}
	file, err := os.CreateTemp(dir, "escriba_audio_*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp audio file: %w", err)
	}

	written, err := io.Copy(file, io.LimitReader(r, maxBytes+1))
	closeErr := file.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(file.Name())
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("stage audio upload: %w", err)
	}

	return &Staged{Path: file.Name(), MimeType: mt, Filename: filename, Size: written}, nil
}

// StagePCM wraps raw little-endian 16-bit PCM from microphone capture
// into a WAV temp file the collaborator can read.
func StagePCM(dir string, pcm []byte, sampleRate, channels int) (*Staged, error) {
	if len(pcm) == 0 {
		return nil, errors.New("empty pcm payload")
	}
	if len(pcm)%2 != 0 {
		return nil, errors.New("pcm payload not aligned")
	}

	if dir == "" {
		dir = os.TempDir()
	}
	file, err := os.CreateTemp(dir, "escriba_capture_*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp capture file: %w", err)
	}

	if err := writePCMToWav(file, pcm, sampleRate, channels); err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		os.Remove(file.Name())
		return nil, fmt.Errorf("stat capture file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(file.Name())
		return nil, fmt.Errorf("close capture file: %w", err)
	}

	return &Staged{Path: file.Name(), MimeType: "audio/wav", Filename: "capture.wav", Size: info.Size()}, nil
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate, channels int) error {
	buffer := &gaudio.IntBuffer{Format: &gaudio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// Remove deletes the staged file. Safe to call more than once.
func (s *Staged) Remove() error {
	if s == nil || s.removed {
		return nil
	}
	s.removed = true
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove staged audio: %w", err)
	}
	return nil
}

// ProbeWAVDuration reads the duration of a staged WAV file. Used as a
// fallback hint when the collaborator does not report total duration.
// Non-WAV inputs return 0 with no error.
func ProbeWAVDuration(path string) (float64, error) {
	if !strings.HasSuffix(strings.ToLower(path), ".wav") {
		return 0, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	dur, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("read wav duration: %w", err)
	}
	return dur.Seconds(), nil
}
