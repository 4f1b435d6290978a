package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/codebuildervaibhav/transcribe-worker/internal/transcription"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

type loadRequest struct {
	Kind         string `json:"kind"`
	Name         string `json:"name,omitempty"`
	Language     string `json:"language,omitempty"`
	Device       string `json:"device,omitempty"`
	ComputeType  string `json:"compute_type,omitempty"`
	DownloadRoot string `json:"download_root,omitempty"`
	UseAuthToken string `json:"use_auth_token,omitempty"`
}

type loadResponse struct {
	ModelID string `json:"model_id"`
}

type transcribeRequest struct {
	ModelID   string `json:"model_id"`
	AudioPath string `json:"audio_path"`
	BatchSize int    `json:"batch_size,omitempty"`
	Language  string `json:"language,omitempty"`
	Task      string `json:"task"`
}

type transcribeResponse struct {
	Language string          `json:"language"`
	Segments []types.Segment `json:"segments"`
}

type alignRequest struct {
	ModelID              string          `json:"model_id"`
	AudioPath            string          `json:"audio_path"`
	Segments             []types.Segment `json:"segments"`
	ReturnCharAlignments bool            `json:"return_char_alignments"`
}

type alignResponse struct {
	Segments []types.AlignedSegment `json:"segments"`
}

type diarizeRequest struct {
	ModelID     string `json:"model_id"`
	AudioPath   string `json:"audio_path"`
	MinSpeakers int    `json:"min_speakers,omitempty"`
	MaxSpeakers int    `json:"max_speakers,omitempty"`
}

type diarizeResponse struct {
	Segments []types.SpeakerTurn `json:"segments"`
}

// LoadRecognizer asks the server to load a recognition model
func (c *Client) LoadRecognizer(ctx context.Context, spec transcription.ModelSpec) (transcription.Recognizer, error) {
	id, err := c.load(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &recognizer{client: c, modelID: id}, nil
}

// LoadAligner asks the server to load the alignment model for spec.Language
func (c *Client) LoadAligner(ctx context.Context, spec transcription.ModelSpec) (transcription.Aligner, error) {
	if spec.Language == "" {
		return nil, errors.New("alignment model needs a language")
	}
	id, err := c.load(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &aligner{client: c, modelID: id}, nil
}

// LoadDiarizer asks the server to load a diarization pipeline
func (c *Client) LoadDiarizer(ctx context.Context, spec transcription.ModelSpec) (transcription.Diarizer, error) {
	id, err := c.load(ctx, spec)
	if err != nil {
		return nil, err
	}
	return &diarizer{client: c, modelID: id}, nil
}

func (c *Client) load(ctx context.Context, spec transcription.ModelSpec) (string, error) {
	var resp loadResponse
	err := c.doJSON(ctx, http.MethodPost, "/v1/models/load", loadRequest{
		Kind:         spec.Kind,
		Name:         spec.Name,
		Language:     spec.Language,
		Device:       spec.Device,
		ComputeType:  spec.ComputeType,
		DownloadRoot: spec.CacheDir,
		UseAuthToken: spec.AuthToken,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("load %s model: %w", spec.Kind, err)
	}
	if resp.ModelID == "" {
		return "", fmt.Errorf("load %s model: server returned no model id", spec.Kind)
	}
	return resp.ModelID, nil
}

type recognizer struct {
	client  *Client
	modelID string
}

func (r *recognizer) Transcribe(ctx context.Context, wf *transcription.Waveform, opts transcription.RecognizeOptions) (*transcription.Recognition, error) {
	var resp transcribeResponse
	err := r.client.doJSON(ctx, http.MethodPost, "/v1/transcribe", transcribeRequest{
		ModelID:   r.modelID,
		AudioPath: wf.Path,
		BatchSize: opts.BatchSize,
		Language:  opts.Language,
		Task:      opts.Task,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &transcription.Recognition{Language: resp.Language, Segments: resp.Segments}, nil
}

type aligner struct {
	client  *Client
	modelID string
}

func (a *aligner) Align(ctx context.Context, wf *transcription.Waveform, segments []types.Segment) ([]types.AlignedSegment, error) {
	var resp alignResponse
	err := a.client.doJSON(ctx, http.MethodPost, "/v1/align", alignRequest{
		ModelID:   a.modelID,
		AudioPath: wf.Path,
		Segments:  segments,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Segments, nil
}

type diarizer struct {
	client  *Client
	modelID string
}

func (d *diarizer) Diarize(ctx context.Context, wf *transcription.Waveform, opts transcription.DiarizeOptions) ([]types.SpeakerTurn, error) {
	var resp diarizeResponse
	err := d.client.doJSON(ctx, http.MethodPost, "/v1/diarize", diarizeRequest{
		ModelID:     d.modelID,
		AudioPath:   wf.Path,
		MinSpeakers: opts.MinSpeakers,
		MaxSpeakers: opts.MaxSpeakers,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Segments, nil
}
