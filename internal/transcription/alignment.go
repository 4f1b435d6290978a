package transcription

import (
	"context"
	"errors"
	"fmt"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// align refines segments to word timestamps. It never fails the request: on
// any error the raw segments come back unchanged in a Degraded outcome.
func (p *Pipeline) align(ctx context.Context, wf *Waveform, rec *Recognition) Outcome[[]types.AlignedSegment] {
	raw := unaligned(rec.Segments)
	if len(rec.Segments) == 0 {
		return OK(raw)
	}

	aligner, err := p.models.Aligner(ctx, rec.Language)
	if err != nil {
		return Degraded(raw, err)
	}

	aligned, err := safeAlign(ctx, aligner, wf, rec.Segments)
	if err != nil {
		return Degraded(raw, fmt.Errorf("align %q: %w", rec.Language, err))
	}

	for i := range aligned {
		if aligned[i].Words == nil {
			aligned[i].Words = []types.Word{}
		}
	}
	return OK(aligned)
}

// safeAlign keeps a panicking aligner inside the stage boundary
func safeAlign(ctx context.Context, aligner Aligner, wf *Waveform, segments []types.Segment) (out []types.AlignedSegment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("aligner panic: %v", r)
		}
	}()

	out, err = aligner.Align(ctx, wf, segments)
	if err == nil && len(out) == 0 {
		err = errors.New("aligner returned no segments")
	}
	return out, err
}

func unaligned(segments []types.Segment) []types.AlignedSegment {
	out := make([]types.AlignedSegment, len(segments))
	for i, seg := range segments {
		out[i] = types.AlignedSegment{Segment: seg, Words: []types.Word{}}
	}
	return out
}
