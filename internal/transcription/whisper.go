package transcription

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// transcribe runs the recognition model. Its failure fails the request.
func (p *Pipeline) transcribe(ctx context.Context, wf *Waveform, req Request) (*Recognition, error) {
	recognizer := p.models.Recognizer()
	if recognizer == nil {
		return nil, errors.New("recognition model not loaded")
	}

	opts := RecognizeOptions{
		Task:      req.Task,
		BatchSize: p.batchSize,
	}
	if req.Language != types.LanguageAuto {
		opts.Language = req.Language
	}

	rec, err := recognizer.Transcribe(ctx, wf, opts)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errors.New("recognition model returned no result")
	}

	// Convert to our format
	segments := make([]types.Segment, len(rec.Segments))
	for i, seg := range rec.Segments {
		if seg.End < seg.Start {
			return nil, fmt.Errorf("segment %d ends before it starts (%.2f < %.2f)", i, seg.End, seg.Start)
		}
		segments[i] = types.Segment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
	}

	language := rec.Language
	if language == "" {
		language = opts.Language
	}
	if language == "" {
		language = p.fallbackLanguage
	}

	return &Recognition{Language: language, Segments: segments}, nil
}
