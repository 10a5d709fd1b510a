package audio

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
)

func TestStageUploadWritesTempFile(t *testing.T) {
	dir := t.TempDir()
	payload := []byte("pretend this is mp3 audio")

	staged, err := StageUpload(dir, "clip.mp3", "audio/mpeg", bytes.NewReader(payload), 1<<20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = staged.Remove() })

	if staged.MimeType != "audio/mpeg" || staged.Filename != "clip.mp3" {
		t.Fatalf("unexpected staged metadata: %+v", staged)
	}
	if !strings.HasSuffix(staged.Path, ".mp3") {
		t.Fatalf("expected .mp3 suffix, got %s", staged.Path)
	}
	data, err := os.ReadFile(staged.Path)
	if err != nil {
		t.Fatalf("read staged file: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("staged bytes do not match upload")
	}
	if staged.Size != int64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), staged.Size)
	}
}

func TestStageUploadRejectsUnsupportedType(t *testing.T) {
	_, err := StageUpload(t.TempDir(), "doc.pdf", "application/pdf", strings.NewReader("x"), 1024)
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestStageUploadEnforcesSizeCap(t *testing.T) {
	dir := t.TempDir()
	_, err := StageUpload(dir, "big.wav", "audio/wav", bytes.NewReader(make([]byte, 100)), 10)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatal("expected no leftover file after rejected upload")
	}
}

func TestStagePCMProducesReadableWAV(t *testing.T) {
	// One second of silence at 16kHz mono, 16-bit.
	pcm := make([]byte, 16000*2)
	staged, err := StagePCM(t.TempDir(), pcm, 16000, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = staged.Remove() })

	if staged.MimeType != "audio/wav" {
		t.Fatalf("expected audio/wav, got %s", staged.MimeType)
	}
	dur, err := ProbeWAVDuration(staged.Path)
	if err != nil {
		t.Fatalf("probe duration: %v", err)
	}
	if dur < 0.99 || dur > 1.01 {
		t.Fatalf("expected ~1s duration, got %v", dur)
	}
}

func TestStagePCMRejectsMisalignedPayload(t *testing.T) {
	if _, err := StagePCM(t.TempDir(), []byte{1, 2, 3}, 16000, 1); err == nil {
		t.Fatal("expected error for odd-length pcm")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	staged, err := StageUpload(t.TempDir(), "a.ogg", "audio/ogg", strings.NewReader("abc"), 1024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := staged.Remove(); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if err := staged.Remove(); err != nil {
		t.Fatalf("second remove: %v", err)
	}
	if _, err := os.Stat(staged.Path); !os.IsNotExist(err) {
		t.Fatal("expected staged file gone")
	}
}

func TestSupportedMime(t *testing.T) {
	if !SupportedMime("audio/mpeg") || !SupportedMime("audio/wav; charset=binary") {
		t.Fatal("expected common audio types to be supported")
	}
	if SupportedMime("video/mp4") || SupportedMime("") {
		t.Fatal("expected non-audio types to be rejected")
	}
}
