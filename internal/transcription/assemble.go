package transcription

import (
	"sort"
	"strings"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// Assemble builds the success-shaped result from the stage outcomes
func Assemble(model, language string, aligned Outcome[[]types.AlignedSegment], speakers Outcome[[]types.SpeakerSegment]) *types.TranscriptionResult {
	segments := make([]types.SpeakerSegment, len(speakers.Value))
	copy(segments, speakers.Value)
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].Start < segments[j].Start
	})

	texts := make([]string, len(segments))
	var duration float64
	for i, seg := range segments {
		texts[i] = seg.Text
		if seg.End > duration {
			duration = seg.End
		}
	}

	return &types.TranscriptionResult{
		Text:     strings.Join(texts, " "),
		Segments: segments,
		Language: language,
		Duration: duration,
		Success:  true,
		Model:    model,
		Features: &types.Features{
			WordTimestamps:              aligned.Status == StageOK,
			SpeakerDiarization:          speakers.Status == StageOK,
			SpeakerDiarizationAttempted: speakers.Status != StageSkipped,
		},
	}
}

// Failure builds the result returned when a request cannot be served
func Failure(err error) *types.TranscriptionResult {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &types.TranscriptionResult{
		Text:     "",
		Segments: []types.SpeakerSegment{},
		Language: types.LanguageUnknown,
		Duration: 0,
		Success:  false,
		Error:    msg,
	}
}
