package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/codebuildervaibhav/transcribe-worker/internal/metrics"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// Request carries the caller's parameters for one transcription
type Request struct {
	ID          string
	Language    string
	Task        string
	MinSpeakers int
	MaxSpeakers int
}

// Normalize fills defaults and rejects parameters the models cannot honour
func (r Request) Normalize() (Request, error) {
	r.Language = NormalizeLanguage(r.Language)
	switch r.Task {
	case "":
		r.Task = types.TaskTranscribe
	case types.TaskTranscribe, types.TaskTranslate:
	default:
		return r, fmt.Errorf("unsupported task %q (want %q or %q)", r.Task, types.TaskTranscribe, types.TaskTranslate)
	}
	if r.MinSpeakers < 0 || r.MaxSpeakers < 0 {
		return r, fmt.Errorf("speaker bounds must not be negative")
	}
	if r.MaxSpeakers > 0 && r.MinSpeakers > r.MaxSpeakers {
		return r, fmt.Errorf("min_speakers %d exceeds max_speakers %d", r.MinSpeakers, r.MaxSpeakers)
	}
	return r, nil
}

// AudioLoader turns uploaded bytes into a Waveform
type AudioLoader interface {
	Load(ctx context.Context, data []byte) (*Waveform, error)
}

// Models is the view of the model bundle the pipeline needs
type Models interface {
	Recognizer() Recognizer
	Aligner(ctx context.Context, language string) (Aligner, error)
	Diarizer() (Diarizer, bool)
}

// PipelineConfig holds per-request knobs that do not come from the caller
type PipelineConfig struct {
	ModelName        string
	BatchSize        int
	FallbackLanguage string
	Diarize          DiarizeOptions
}

// Pipeline chains loading, recognition, alignment and diarization for one
// request at a time. It is safe for concurrent use; all shared state lives in
// the Models it was built with.
type Pipeline struct {
	loader           AudioLoader
	models           Models
	modelName        string
	batchSize        int
	fallbackLanguage string
	diarizeDefaults  DiarizeOptions
	logger           *slog.Logger
}

// NewPipeline creates a pipeline over a loader and a model bundle
func NewPipeline(loader AudioLoader, models Models, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if cfg.FallbackLanguage == "" {
		cfg.FallbackLanguage = "en"
	}
	return &Pipeline{
		loader:           loader,
		models:           models,
		modelName:        cfg.ModelName,
		batchSize:        cfg.BatchSize,
		fallbackLanguage: cfg.FallbackLanguage,
		diarizeDefaults:  cfg.Diarize,
		logger:           logger,
	}
}

// Run transcribes audio. It always returns a well-formed result: request
// failures come back with Success false, stage failures as reduced features.
func (p *Pipeline) Run(ctx context.Context, audio []byte, req Request) (result *types.TranscriptionResult) {
	logger := p.logger.With("request_id", req.ID)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline panic", "panic", r, "stack", string(debug.Stack()))
			result = Failure(fmt.Errorf("internal error: %v", r))
		}
	}()

	req, err := req.Normalize()
	if err != nil {
		logger.Warn("rejected request", "error", err)
		return Failure(err)
	}

	logger.Info("starting transcription", "language", req.Language, "task", req.Task, "bytes", len(audio))

	// Loading
	wf, err := p.loader.Load(ctx, audio)
	if err != nil {
		logger.Warn("audio load failed", "error", err)
		return Failure(err)
	}
	defer func() {
		if err := wf.Close(); err != nil {
			logger.Warn("failed to release waveform", "error", err)
		}
	}()
	logger.Debug("audio loaded", "seconds", wf.Duration())

	// Transcribing
	rec, err := p.transcribe(ctx, wf, req)
	if err != nil {
		metrics.ObserveStage("transcription", "failed")
		logger.Error("transcription failed", "error", err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Failure(fmt.Errorf("transcription aborted: %w", ctxErr))
		}
		return Failure(fmt.Errorf("transcription failed: %w", err))
	}
	metrics.ObserveStage("transcription", StageOK.String())
	logger.Info("transcription completed", "language", rec.Language, "segments", len(rec.Segments))
	if err := ctx.Err(); err != nil {
		return Failure(fmt.Errorf("request aborted after transcription: %w", err))
	}

	// Aligning
	aligned := p.align(ctx, wf, rec)
	p.logStage(logger, "alignment", aligned.Status, aligned.Reason)
	if err := ctx.Err(); err != nil {
		return Failure(fmt.Errorf("request aborted during alignment: %w", err))
	}

	// Diarizing
	speakers := p.diarize(ctx, wf, aligned.Value, req)
	p.logStage(logger, "diarization", speakers.Status, speakers.Reason)
	if err := ctx.Err(); err != nil {
		return Failure(fmt.Errorf("request aborted during diarization: %w", err))
	}

	// Assembling
	result = Assemble(p.modelName, rec.Language, aligned, speakers)
	logger.Info("transcription finished",
		"segments", len(result.Segments),
		"duration", result.Duration,
		"word_timestamps", result.Features.WordTimestamps,
		"speaker_diarization", result.Features.SpeakerDiarization,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result
}

func (p *Pipeline) logStage(logger *slog.Logger, stage string, status StageStatus, reason error) {
	metrics.ObserveStage(stage, status.String())
	switch status {
	case StageOK:
		logger.Info(stage + " completed")
	case StageSkipped:
		logger.Debug(stage+" skipped", "reason", reason)
	default:
		logger.Warn(stage+" failed, continuing without it", "error", reason)
	}
}
