package transcription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeRecognizer struct {
	rec   *Recognition
	err   error
	panic bool
	calls atomic.Int32
	last  RecognizeOptions
	mu    sync.Mutex
}

func (f *fakeRecognizer) Transcribe(_ context.Context, _ *Waveform, opts RecognizeOptions) (*Recognition, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.last = opts
	f.mu.Unlock()
	if f.panic {
		panic("recognizer exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	segs := make([]types.Segment, len(f.rec.Segments))
	copy(segs, f.rec.Segments)
	return &Recognition{Language: f.rec.Language, Segments: segs}, nil
}

type fakeAligner struct {
	words map[string][]types.Word
	err   error
	panic bool
	empty bool
}

func (f *fakeAligner) Align(_ context.Context, _ *Waveform, segments []types.Segment) ([]types.AlignedSegment, error) {
	if f.panic {
		panic("aligner exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return nil, nil
	}
	out := make([]types.AlignedSegment, len(segments))
	for i, seg := range segments {
		out[i] = types.AlignedSegment{Segment: seg, Words: f.words[seg.Text]}
	}
	return out, nil
}

type fakeDiarizer struct {
	turns []types.SpeakerTurn
	err   error
	last  DiarizeOptions
}

func (f *fakeDiarizer) Diarize(_ context.Context, _ *Waveform, opts DiarizeOptions) ([]types.SpeakerTurn, error) {
	f.last = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.turns, nil
}

// fakeModels satisfies Models without any loading machinery
type fakeModels struct {
	recognizer Recognizer
	aligner    Aligner
	alignErr   error
	diarizer   Diarizer
}

func (m *fakeModels) Recognizer() Recognizer { return m.recognizer }

func (m *fakeModels) Aligner(_ context.Context, _ string) (Aligner, error) {
	if m.alignErr != nil {
		return nil, m.alignErr
	}
	return m.aligner, nil
}

func (m *fakeModels) Diarizer() (Diarizer, bool) {
	return m.diarizer, m.diarizer != nil
}

// fakeAudio returns a fixed waveform, or an error
type fakeAudio struct {
	err   error
	calls atomic.Int32
}

func (a *fakeAudio) Load(_ context.Context, data []byte) (*Waveform, error) {
	a.calls.Add(1)
	if a.err != nil {
		return nil, a.err
	}
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty audio input")}
	}
	return &Waveform{SampleRate: SampleRate, Channels: 1, Frames: SampleRate}, nil
}

// fakeLoader satisfies ModelLoader and counts loads per kind
type fakeLoader struct {
	recognizerErr error
	alignErr      map[string]error
	diarizerErr   error
	alignDelay    time.Duration

	mu         sync.Mutex
	alignLoads map[string]int
	diarLoads  int
	specs      []ModelSpec
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		alignErr:   make(map[string]error),
		alignLoads: make(map[string]int),
	}
}

func (l *fakeLoader) record(spec ModelSpec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.specs = append(l.specs, spec)
	switch spec.Kind {
	case KindAlignment:
		l.alignLoads[spec.Language]++
	case KindDiarization:
		l.diarLoads++
	}
}

func (l *fakeLoader) alignCount(lang string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alignLoads[lang]
}

func (l *fakeLoader) LoadRecognizer(_ context.Context, spec ModelSpec) (Recognizer, error) {
	l.record(spec)
	if l.recognizerErr != nil {
		return nil, l.recognizerErr
	}
	return &fakeRecognizer{rec: &Recognition{Language: "en"}}, nil
}

func (l *fakeLoader) LoadAligner(_ context.Context, spec ModelSpec) (Aligner, error) {
	l.record(spec)
	if l.alignDelay > 0 {
		time.Sleep(l.alignDelay)
	}
	l.mu.Lock()
	err := l.alignErr[spec.Language]
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeAligner{}, nil
}

func (l *fakeLoader) LoadDiarizer(_ context.Context, spec ModelSpec) (Diarizer, error) {
	l.record(spec)
	if l.diarizerErr != nil {
		return nil, l.diarizerErr
	}
	return &fakeDiarizer{}, nil
}

type permanentErr struct{}

func (permanentErr) Error() string   { return "model not found" }
func (permanentErr) Permanent() bool { return true }

type fakeRecorder struct {
	mu    sync.Mutex
	kinds []string
}

func (r *fakeRecorder) RecordLoad(_ context.Context, kind, _, _ string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds = append(r.kinds, kind)
	return nil
}
