package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/codebuildervaibhav/transcribe-worker/internal/metrics"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// Model kinds understood by the model server
const (
	KindRecognition = "recognition"
	KindAlignment   = "alignment"
	KindDiarization = "diarization"
)

// ErrDiarizationUnavailable is returned when no diarization model is loaded
var ErrDiarizationUnavailable = errors.New("speaker diarization unavailable")

// RecognizeOptions controls one recognition call
type RecognizeOptions struct {
	Language  string // empty means detect
	Task      string
	BatchSize int
}

// Recognition is the raw output of the recognition model
type Recognition struct {
	Language string
	Segments []types.Segment
}

// DiarizeOptions bounds the number of speakers the diarizer may return
type DiarizeOptions struct {
	MinSpeakers int
	MaxSpeakers int
}

// Recognizer produces coarse segments from a waveform
type Recognizer interface {
	Transcribe(ctx context.Context, wf *Waveform, opts RecognizeOptions) (*Recognition, error)
}

// Aligner refines segments to word-level timestamps for one language
type Aligner interface {
	Align(ctx context.Context, wf *Waveform, segments []types.Segment) ([]types.AlignedSegment, error)
}

// Diarizer produces speaker-labelled intervals
type Diarizer interface {
	Diarize(ctx context.Context, wf *Waveform, opts DiarizeOptions) ([]types.SpeakerTurn, error)
}

// ModelSpec identifies a model to load
type ModelSpec struct {
	Kind        string
	Name        string
	Language    string
	Device      string
	ComputeType string
	CacheDir    string
	AuthToken   string
}

// ModelLoader loads models into the inference runtime
type ModelLoader interface {
	LoadRecognizer(ctx context.Context, spec ModelSpec) (Recognizer, error)
	LoadAligner(ctx context.Context, spec ModelSpec) (Aligner, error)
	LoadDiarizer(ctx context.Context, spec ModelSpec) (Diarizer, error)
}

// LoadRecorder is notified after every successful model load
type LoadRecorder interface {
	RecordLoad(ctx context.Context, kind, name, language string, elapsed time.Duration) error
}

// BundleConfig describes the models a worker loads at startup
type BundleConfig struct {
	RecognitionModel string
	Device           string
	ComputeType      string
	CacheDir         string
	DefaultLanguage  string
	DiarizationModel string
	DiarizationToken string
	LoadAttempts     int
	RetryDelay       time.Duration
}

// ModelBundle owns every model a worker serves with. The recognizer and the
// diarization capability are fixed at construction; only the aligner cache
// grows afterwards.
type ModelBundle struct {
	loader   ModelLoader
	cfg      BundleConfig
	recorder LoadRecorder
	logger   *slog.Logger

	recognizer         Recognizer
	diarizer           Diarizer
	diarizationEnabled bool

	mu       sync.RWMutex
	aligners map[string]Aligner
	group    singleflight.Group
}

// NewModelBundle loads the worker's models. It fails only when the
// recognition model cannot be loaded.
func NewModelBundle(ctx context.Context, loader ModelLoader, cfg BundleConfig, recorder LoadRecorder, logger *slog.Logger) (*ModelBundle, error) {
	if cfg.LoadAttempts < 1 {
		cfg.LoadAttempts = 1
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}

	b := &ModelBundle{
		loader:   loader,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger,
		aligners: make(map[string]Aligner),
	}

	logger.Info("loading recognition model", "model", cfg.RecognitionModel, "device", cfg.Device)
	recognizer, err := load(ctx, b, b.spec(KindRecognition, cfg.RecognitionModel, ""), loader.LoadRecognizer)
	if err != nil {
		return nil, fmt.Errorf("load recognition model %s: %w", cfg.RecognitionModel, err)
	}
	b.recognizer = recognizer

	if _, err := b.Aligner(ctx, cfg.DefaultLanguage); err != nil {
		logger.Warn("default alignment model not loaded, will retry on demand",
			"language", cfg.DefaultLanguage, "error", err)
	}

	if cfg.DiarizationToken == "" {
		logger.Warn("speaker diarization disabled", "reason", "no access token configured")
	} else {
		diarizer, err := load(ctx, b, b.spec(KindDiarization, cfg.DiarizationModel, ""), loader.LoadDiarizer)
		if err != nil {
			logger.Warn("speaker diarization disabled", "error", err)
		} else {
			b.diarizer = diarizer
			b.diarizationEnabled = true
			logger.Info("speaker diarization enabled")
		}
	}

	logger.Info("model bundle ready",
		"model", cfg.RecognitionModel,
		"diarization", b.diarizationEnabled,
		"align_languages", b.AlignLanguages())
	return b, nil
}

// Recognizer returns the recognition model
func (b *ModelBundle) Recognizer() Recognizer {
	return b.recognizer
}

// DiarizationEnabled reports whether a diarization model was loaded at startup
func (b *ModelBundle) DiarizationEnabled() bool {
	return b.diarizationEnabled
}

// Diarizer returns the diarization model and whether one is available
func (b *ModelBundle) Diarizer() (Diarizer, bool) {
	return b.diarizer, b.diarizationEnabled
}

// Aligner returns the alignment model for language, loading it on first use.
// Concurrent first loads of one language share a single load; a failed load
// is not cached.
func (b *ModelBundle) Aligner(ctx context.Context, language string) (Aligner, error) {
	b.mu.RLock()
	aligner, ok := b.aligners[language]
	b.mu.RUnlock()
	if ok {
		return aligner, nil
	}

	ch := b.group.DoChan(language, func() (interface{}, error) {
		b.mu.RLock()
		cached, ok := b.aligners[language]
		b.mu.RUnlock()
		if ok {
			return cached, nil
		}

		// The load outlives any single caller; others may be waiting on it.
		loaded, err := load(context.WithoutCancel(ctx), b, b.spec(KindAlignment, "", language), b.loader.LoadAligner)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.aligners[language] = loaded
		b.mu.Unlock()
		return loaded, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("load alignment model for %q: %w", language, res.Err)
		}
		return res.Val.(Aligner), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AlignLanguages lists languages with a cached alignment model
func (b *ModelBundle) AlignLanguages() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	langs := make([]string, 0, len(b.aligners))
	for lang := range b.aligners {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

func (b *ModelBundle) spec(kind, name, language string) ModelSpec {
	token := ""
	if kind == KindDiarization {
		token = b.cfg.DiarizationToken
	}
	return ModelSpec{
		Kind:        kind,
		Name:        name,
		Language:    language,
		Device:      b.cfg.Device,
		ComputeType: b.cfg.ComputeType,
		CacheDir:    b.cfg.CacheDir,
		AuthToken:   token,
	}
}

// permanent is implemented by errors that retrying cannot fix
type permanent interface {
	Permanent() bool
}

func load[T any](ctx context.Context, b *ModelBundle, spec ModelSpec, fn func(context.Context, ModelSpec) (T, error)) (T, error) {
	var (
		model T
		err   error
	)

	for attempt := 1; attempt <= b.cfg.LoadAttempts; attempt++ {
		start := time.Now()
		model, err = fn(ctx, spec)
		elapsed := time.Since(start)
		metrics.ObserveModelLoad(spec.Kind, elapsed, err)
		if err == nil {
			if b.recorder != nil {
				if recErr := b.recorder.RecordLoad(ctx, spec.Kind, spec.Name, spec.Language, elapsed); recErr != nil {
					b.logger.Warn("failed to record model load", "kind", spec.Kind, "error", recErr)
				}
			}
			b.logger.Info("model loaded",
				"kind", spec.Kind,
				"language", spec.Language,
				"elapsed", elapsed.Round(time.Millisecond))
			return model, nil
		}

		b.logger.Warn("model load failed",
			"kind", spec.Kind,
			"language", spec.Language,
			"attempt", attempt,
			"attempts", b.cfg.LoadAttempts,
			"error", err)

		var p permanent
		if errors.As(err, &p) && p.Permanent() {
			break
		}
		if attempt < b.cfg.LoadAttempts {
			delay := time.Duration(attempt*attempt) * b.cfg.RetryDelay
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return model, ctx.Err()
			}
		}
	}
	return model, err
}
