package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// SampleRate is the rate the recognition model expects
const SampleRate = 16000

// DecodeError reports input bytes that could not be turned into audio
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio decode failed: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Waveform describes the normalized WAV the model server reads. Samples stay
// on disk; it belongs to a single request and Close removes its staging file.
type Waveform struct {
	SampleRate int
	Channels   int
	Frames     int
	Path       string

	closeOnce sync.Once
	closeErr  error
}

// Duration is the length of the audio in seconds
func (w *Waveform) Duration() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(w.Frames) / float64(w.SampleRate)
}

// Close removes the staged WAV. Safe to call more than once.
func (w *Waveform) Close() error {
	w.closeOnce.Do(func() {
		if w.Path == "" {
			return
		}
		if err := os.Remove(w.Path); err != nil && !os.IsNotExist(err) {
			w.closeErr = err
		}
	})
	return w.closeErr
}

// NormalizeFunc converts the file at in to a 16kHz mono 16-bit WAV at out
type NormalizeFunc func(ctx context.Context, in, out string) error

// Loader stages uploaded bytes on disk and decodes them into a Waveform
type Loader struct {
	tempDir   string
	normalize NormalizeFunc
	logger    *slog.Logger
}

// NewLoader creates a loader that normalizes with ffmpeg
func NewLoader(tempDir string, logger *slog.Logger) *Loader {
	return &Loader{
		tempDir:   tempDir,
		normalize: FFmpegNormalize,
		logger:    logger,
	}
}

// WithNormalizer swaps the conversion step, mainly for tests
func (l *Loader) WithNormalizer(fn NormalizeFunc) *Loader {
	l.normalize = fn
	return l
}

// Load decodes data into a Waveform. The raw upload is always removed before
// returning; on error nothing is left behind in the temp directory.
func (l *Loader) Load(ctx context.Context, data []byte) (*Waveform, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty audio input")}
	}

	id := uuid.New().String()
	rawPath := filepath.Join(l.tempDir, "upload_"+id)
	wavPath := filepath.Join(l.tempDir, "normalized_"+id+".wav")

	if err := os.WriteFile(rawPath, data, 0600); err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	defer removeQuietly(l.logger, rawPath)

	l.logger.Debug("staged upload",
		"bytes", len(data),
		"content_type", http.DetectContentType(data))

	if err := l.normalize(ctx, rawPath, wavPath); err != nil {
		removeQuietly(l.logger, wavPath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &DecodeError{Err: err}
	}

	wf, err := probeWAV(wavPath)
	if err != nil {
		removeQuietly(l.logger, wavPath)
		return nil, &DecodeError{Err: err}
	}
	return wf, nil
}

// FFmpegNormalize converts any audio file to 16kHz mono WAV format
func FFmpegNormalize(ctx context.Context, inputPath, outputPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-nostdin",
		"-i", inputPath,
		"-ar", fmt.Sprint(SampleRate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		outputPath,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, lastLines(output, 5))
	}
	return nil
}

// probeWAV validates the header and reads a single frame; the PCM data itself
// is never loaded into memory.
func probeWAV(path string) (*Waveform, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("locate PCM data: %w", err)
	}

	channels := int(d.NumChans)
	frameBytes := channels * int(d.BitDepth) / 8
	if frameBytes == 0 {
		return nil, errors.New("WAV header reports zero frame size")
	}

	first := &audio.IntBuffer{Data: make([]int, channels), Format: d.Format()}
	n, err := d.PCMBuffer(first)
	if err != nil {
		return nil, fmt.Errorf("read PCM: %w", err)
	}
	if n == 0 || d.PCMSize < frameBytes {
		return nil, errors.New("audio contains no samples")
	}

	return &Waveform{
		SampleRate: int(d.SampleRate),
		Channels:   channels,
		Frames:     d.PCMSize / frameBytes,
		Path:       path,
	}, nil
}

func removeQuietly(logger *slog.Logger, path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove staging file", "path", path, "error", err)
	}
}

func lastLines(b []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
