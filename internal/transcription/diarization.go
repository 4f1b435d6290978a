package transcription

import (
	"context"
	"fmt"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// diarize labels segments with speakers. When the bundle has no diarization
// capability the stage is Skipped; a failing call is Degraded. Either way
// every speaker is types.UnknownSpeaker.
func (p *Pipeline) diarize(ctx context.Context, wf *Waveform, segments []types.AlignedSegment, req Request) Outcome[[]types.SpeakerSegment] {
	diarizer, ok := p.models.Diarizer()
	if !ok || diarizer == nil {
		return Skipped(Unlabeled(segments), ErrDiarizationUnavailable)
	}

	opts := p.diarizeDefaults
	if req.MinSpeakers > 0 {
		opts.MinSpeakers = req.MinSpeakers
	}
	if req.MaxSpeakers > 0 {
		opts.MaxSpeakers = req.MaxSpeakers
	}

	turns, err := safeDiarize(ctx, diarizer, wf, opts)
	if err != nil {
		return Degraded(Unlabeled(segments), err)
	}
	return OK(AssignSpeakers(turns, segments))
}

func safeDiarize(ctx context.Context, diarizer Diarizer, wf *Waveform, opts DiarizeOptions) (turns []types.SpeakerTurn, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("diarizer panic: %v", r)
		}
	}()
	return diarizer.Diarize(ctx, wf, opts)
}

// AssignSpeakers gives each segment, and each timed word, the speaker whose
// turns overlap its [start, end) span the most. Spans no turn overlaps get
// types.UnknownSpeaker.
func AssignSpeakers(turns []types.SpeakerTurn, segments []types.AlignedSegment) []types.SpeakerSegment {
	out := make([]types.SpeakerSegment, len(segments))
	for i, seg := range segments {
		words := make([]types.Word, len(seg.Words))
		for j, w := range seg.Words {
			w.Speaker = types.UnknownSpeaker
			if w.Timed() {
				w.Speaker = dominantSpeaker(turns, w.Start, w.End)
			}
			words[j] = w
		}
		out[i] = types.SpeakerSegment{
			Speaker: dominantSpeaker(turns, seg.Start, seg.End),
			Text:    seg.Text,
			Start:   seg.Start,
			End:     seg.End,
			Words:   words,
		}
	}
	return out
}

// Unlabeled converts segments without consulting any speaker information
func Unlabeled(segments []types.AlignedSegment) []types.SpeakerSegment {
	return AssignSpeakers(nil, segments)
}

// dominantSpeaker sums overlap per speaker; ties go to the speaker seen first
func dominantSpeaker(turns []types.SpeakerTurn, start, end float64) string {
	if end <= start {
		return types.UnknownSpeaker
	}

	var (
		order []string
		total = make(map[string]float64)
	)
	for _, turn := range turns {
		overlap := min(end, turn.End) - max(start, turn.Start)
		if overlap <= 0 || turn.Speaker == "" {
			continue
		}
		if _, seen := total[turn.Speaker]; !seen {
			order = append(order, turn.Speaker)
		}
		total[turn.Speaker] += overlap
	}

	best := types.UnknownSpeaker
	bestOverlap := 0.0
	for _, speaker := range order {
		if total[speaker] > bestOverlap {
			best = speaker
			bestOverlap = total[speaker]
		}
	}
	return best
}
