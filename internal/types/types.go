package types

// Job status constants
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Source types
const (
	SourceUpload = "upload"
	SourceStream = "stream"
)

// Task constants
const (
	TaskTranscribe = "transcribe"
	TaskTranslate  = "translate"
)

// Language constants
const (
	LanguageAuto    = "auto"
	LanguageUnknown = "unknown"
)

// UnknownSpeaker is assigned to segments and words no diarized speaker overlaps.
const UnknownSpeaker = "Unknown"

// Word is a single aligned word
type Word struct {
	Word    string  `json:"word"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Score   float64 `json:"score"`
	Speaker string  `json:"speaker,omitempty"`
}

// Timed reports whether the aligner produced a usable time span for the word.
func (w Word) Timed() bool {
	return w.End > w.Start
}

// Segment represents a timestamped segment of transcription
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// AlignedSegment is a segment refined with word-level timestamps
type AlignedSegment struct {
	Segment
	Words []Word `json:"words"`
}

// SpeakerSegment is the externally visible segment shape
type SpeakerSegment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Words   []Word  `json:"words"`
}

// SpeakerTurn is one interval produced by the diarization model
type SpeakerTurn struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Speaker string  `json:"speaker"`
}

// Features reports which optional stages contributed to a result
type Features struct {
	WordTimestamps              bool `json:"word_timestamps"`
	SpeakerDiarization          bool `json:"speaker_diarization"`
	SpeakerDiarizationAttempted bool `json:"speaker_diarization_attempted"`
}

// TranscriptionResult is the response returned for every transcription request
type TranscriptionResult struct {
	Text     string           `json:"text"`
	Segments []SpeakerSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
	Success  bool             `json:"success"`
	Model    string           `json:"model,omitempty"`
	Features *Features        `json:"features,omitempty"`
	Error    string           `json:"error,omitempty"`
}
