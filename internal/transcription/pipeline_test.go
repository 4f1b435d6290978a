package transcription

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

var twoSpeakerSegments = []types.Segment{
	{Start: 0, End: 2.5, Text: " Hello there. "},
	{Start: 2.5, End: 5, Text: "General Kenobi."},
}

var twoSpeakerWords = map[string][]types.Word{
	"Hello there.": {
		{Word: "Hello", Start: 0.2, End: 0.8, Score: 0.95},
		{Word: "there.", Start: 0.9, End: 1.4, Score: 0.91},
	},
	"General Kenobi.": {
		{Word: "General", Start: 2.6, End: 3.2, Score: 0.88},
		{Word: "Kenobi.", Start: 3.3, End: 4.1, Score: 0.93},
	},
}

func newTestPipeline(models *fakeModels, audio AudioLoader) *Pipeline {
	if audio == nil {
		audio = &fakeAudio{}
	}
	return NewPipeline(audio, models, PipelineConfig{
		ModelName:        "whisperx-large-v2",
		BatchSize:        16,
		FallbackLanguage: "en",
	}, discardLogger())
}

func fullModels() *fakeModels {
	return &fakeModels{
		recognizer: &fakeRecognizer{rec: &Recognition{Language: "en", Segments: twoSpeakerSegments}},
		aligner:    &fakeAligner{words: twoSpeakerWords},
		diarizer: &fakeDiarizer{turns: []types.SpeakerTurn{
			{Start: 0, End: 2.4, Speaker: "SPEAKER_00"},
			{Start: 2.4, End: 5, Speaker: "SPEAKER_01"},
		}},
	}
}

func TestPipelineTwoSpeakers(t *testing.T) {
	p := newTestPipeline(fullModels(), nil)

	res := p.Run(context.Background(), []byte("audio"), Request{ID: "req-1"})

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Hello there. General Kenobi.", res.Text)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, 5.0, res.Duration)
	assert.Equal(t, "whisperx-large-v2", res.Model)
	assert.Equal(t, &types.Features{
		WordTimestamps:              true,
		SpeakerDiarization:          true,
		SpeakerDiarizationAttempted: true,
	}, res.Features)

	require.Len(t, res.Segments, 2)
	assert.Equal(t, "SPEAKER_00", res.Segments[0].Speaker)
	assert.Equal(t, "SPEAKER_01", res.Segments[1].Speaker)
	for _, seg := range res.Segments {
		require.Len(t, seg.Words, 2)
		for _, w := range seg.Words {
			assert.Equal(t, seg.Speaker, w.Speaker)
			assert.GreaterOrEqual(t, w.Start, seg.Start)
			assert.LessOrEqual(t, w.End, seg.End)
		}
	}
}

func TestPipelineAlignmentDegrades(t *testing.T) {
	tests := []struct {
		name   string
		models func(*fakeModels)
	}{
		{"aligner unavailable", func(m *fakeModels) { m.alignErr = errors.New("no model for xx") }},
		{"aligner errors", func(m *fakeModels) { m.aligner = &fakeAligner{err: errors.New("cuda oom")} }},
		{"aligner panics", func(m *fakeModels) { m.aligner = &fakeAligner{panic: true} }},
		{"aligner returns nothing", func(m *fakeModels) { m.aligner = &fakeAligner{empty: true} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := fullModels()
			tt.models(models)

			res := newTestPipeline(models, nil).Run(context.Background(), []byte("audio"), Request{})

			require.True(t, res.Success, res.Error)
			assert.False(t, res.Features.WordTimestamps)
			assert.True(t, res.Features.SpeakerDiarization)
			require.Len(t, res.Segments, 2)
			for _, seg := range res.Segments {
				assert.Empty(t, seg.Words)
				assert.NotNil(t, seg.Words)
			}
			assert.Equal(t, "Hello there.", res.Segments[0].Text)
		})
	}
}

func TestPipelineDiarizationDegrades(t *testing.T) {
	models := fullModels()
	models.diarizer = &fakeDiarizer{err: errors.New("pyannote crashed")}

	res := newTestPipeline(models, nil).Run(context.Background(), []byte("audio"), Request{})

	require.True(t, res.Success, res.Error)
	assert.True(t, res.Features.WordTimestamps)
	assert.False(t, res.Features.SpeakerDiarization)
	assert.True(t, res.Features.SpeakerDiarizationAttempted)
	for _, seg := range res.Segments {
		assert.Equal(t, types.UnknownSpeaker, seg.Speaker)
		for _, w := range seg.Words {
			assert.Equal(t, types.UnknownSpeaker, w.Speaker)
		}
	}
}

func TestPipelineDiarizationUnavailable(t *testing.T) {
	models := fullModels()
	models.diarizer = nil

	res := newTestPipeline(models, nil).Run(context.Background(), []byte("audio"), Request{})

	require.True(t, res.Success, res.Error)
	assert.False(t, res.Features.SpeakerDiarization)
	assert.False(t, res.Features.SpeakerDiarizationAttempted)
	assert.Equal(t, types.UnknownSpeaker, res.Segments[0].Speaker)
}

func TestPipelineSpeakerBounds(t *testing.T) {
	models := fullModels()
	diarizer := models.diarizer.(*fakeDiarizer)
	p := NewPipeline(&fakeAudio{}, models, PipelineConfig{Diarize: DiarizeOptions{MinSpeakers: 1, MaxSpeakers: 4}}, discardLogger())

	p.Run(context.Background(), []byte("audio"), Request{})
	assert.Equal(t, DiarizeOptions{MinSpeakers: 1, MaxSpeakers: 4}, diarizer.last)

	p.Run(context.Background(), []byte("audio"), Request{MinSpeakers: 2, MaxSpeakers: 2})
	assert.Equal(t, DiarizeOptions{MinSpeakers: 2, MaxSpeakers: 2}, diarizer.last)
}

func TestPipelineRecognitionOptions(t *testing.T) {
	models := fullModels()
	recognizer := models.recognizer.(*fakeRecognizer)
	p := newTestPipeline(models, nil)

	p.Run(context.Background(), []byte("audio"), Request{Language: "German", Task: types.TaskTranslate})
	assert.Equal(t, RecognizeOptions{Language: "de", Task: types.TaskTranslate, BatchSize: 16}, recognizer.last)

	p.Run(context.Background(), []byte("audio"), Request{})
	assert.Equal(t, RecognizeOptions{Task: types.TaskTranscribe, BatchSize: 16}, recognizer.last)
}

func TestPipelineLanguageFallback(t *testing.T) {
	models := fullModels()
	models.recognizer = &fakeRecognizer{rec: &Recognition{Segments: twoSpeakerSegments}}

	res := newTestPipeline(models, nil).Run(context.Background(), []byte("audio"), Request{Language: "fr"})
	assert.Equal(t, "fr", res.Language)

	res = newTestPipeline(models, nil).Run(context.Background(), []byte("audio"), Request{})
	assert.Equal(t, "en", res.Language)
}

func TestPipelineFailures(t *testing.T) {
	tests := []struct {
		name    string
		models  func(*fakeModels)
		audio   *fakeAudio
		req     Request
		input   []byte
		wantErr string
	}{
		{
			name:    "invalid task",
			req:     Request{Task: "summarize"},
			input:   []byte("audio"),
			wantErr: "unsupported task",
		},
		{
			name:    "corrupt audio",
			audio:   &fakeAudio{err: &DecodeError{Err: errors.New("invalid data found")}},
			input:   []byte("not audio"),
			wantErr: "audio decode failed",
		},
		{
			name:    "empty audio",
			input:   nil,
			wantErr: "audio decode failed",
		},
		{
			name:    "recognizer error",
			models:  func(m *fakeModels) { m.recognizer = &fakeRecognizer{err: errors.New("cuda oom")} },
			input:   []byte("audio"),
			wantErr: "transcription failed: cuda oom",
		},
		{
			name:    "recognizer panic",
			models:  func(m *fakeModels) { m.recognizer = &fakeRecognizer{panic: true} },
			input:   []byte("audio"),
			wantErr: "internal error",
		},
		{
			name:    "speaker bounds inverted",
			req:     Request{MinSpeakers: 3, MaxSpeakers: 2},
			input:   []byte("audio"),
			wantErr: "exceeds max_speakers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			models := fullModels()
			if tt.models != nil {
				tt.models(models)
			}
			var audio AudioLoader
			if tt.audio != nil {
				audio = tt.audio
			}

			res := newTestPipeline(models, audio).Run(context.Background(), tt.input, tt.req)

			assert.False(t, res.Success)
			assert.Contains(t, res.Error, tt.wantErr)
			assert.Equal(t, types.LanguageUnknown, res.Language)
			assert.Empty(t, res.Text)
			assert.NotNil(t, res.Segments)
			assert.Empty(t, res.Segments)
			assert.Nil(t, res.Features)
			assert.Empty(t, res.Model)
		})
	}
}

func TestPipelineCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestPipeline(fullModels(), nil).Run(ctx, []byte("audio"), Request{})

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, context.Canceled.Error())
}

func TestPipelineIdempotent(t *testing.T) {
	p := newTestPipeline(fullModels(), nil)

	first := p.Run(context.Background(), []byte("audio"), Request{Language: "en"})
	second := p.Run(context.Background(), []byte("audio"), Request{Language: "en"})

	assert.Equal(t, first, second)
}

func TestRequestNormalize(t *testing.T) {
	req, err := Request{Language: " English "}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "en", req.Language)
	assert.Equal(t, types.TaskTranscribe, req.Task)

	req, err = Request{Task: types.TaskTranslate}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, types.LanguageAuto, req.Language)

	_, err = Request{MinSpeakers: -1}.Normalize()
	assert.Error(t, err)
}
