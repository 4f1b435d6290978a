package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/codebuildervaibhav/transcribe-worker/internal/queue"
	"github.com/codebuildervaibhav/transcribe-worker/internal/transcription"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// Submitter runs a job and waits for its result
type Submitter interface {
	Submit(ctx context.Context, job *queue.Job) *types.TranscriptionResult
}

var (
	errNoFile   = errors.New("No file provided")
	errTooLarge = errors.New("file too large")
)

// transcribeBody is the JSON form of a request; file is base64 audio
type transcribeBody struct {
	File        string `json:"file"`
	Language    string `json:"language"`
	Task        string `json:"task"`
	MinSpeakers int    `json:"min_speakers"`
	MaxSpeakers int    `json:"max_speakers"`
}

// TranscribeHandler accepts audio over HTTP and answers with the result
type TranscribeHandler struct {
	pool      Submitter
	maxSizeMB int
	logger    *slog.Logger
}

// NewTranscribeHandler creates a new transcribe handler
func NewTranscribeHandler(pool Submitter, maxSizeMB int, logger *slog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		pool:      pool,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

// Handle processes POST /transcribe. The body is JSON with base64 audio,
// a multipart form with a "file" part, or the raw audio bytes.
func (h *TranscribeHandler) Handle(c *fiber.Ctx) error {
	audio, req, err := h.parse(c)
	switch {
	case errors.Is(err, errNoFile):
		return errorResponse(c, fiber.StatusBadRequest, errNoFile.Error(), "ERR_NO_FILE")
	case errors.Is(err, errTooLarge):
		return errorResponse(c, fiber.StatusRequestEntityTooLarge,
			fmt.Sprintf("File too large (max %dMB)", h.maxSizeMB), "ERR_FILE_TOO_LARGE")
	case err != nil:
		return errorResponse(c, fiber.StatusBadRequest, err.Error(), "ERR_BAD_REQUEST")
	}

	job := queue.NewJob(types.SourceUpload, audio, req)
	h.logger.Info("transcription requested",
		"request_id", job.ID,
		"bytes", len(audio),
		"language", req.Language,
		"task", req.Task)

	result := h.pool.Submit(c.UserContext(), job)
	return c.JSON(result)
}

func (h *TranscribeHandler) parse(c *fiber.Ctx) ([]byte, transcription.Request, error) {
	contentType := strings.ToLower(string(c.Request().Header.ContentType()))

	switch {
	case strings.HasPrefix(contentType, fiber.MIMEApplicationJSON):
		return h.parseJSON(c)
	case strings.HasPrefix(contentType, fiber.MIMEMultipartForm):
		return h.parseMultipart(c)
	default:
		return h.parseRaw(c)
	}
}

func (h *TranscribeHandler) parseJSON(c *fiber.Ctx) ([]byte, transcription.Request, error) {
	var body transcribeBody
	if err := c.BodyParser(&body); err != nil {
		return nil, transcription.Request{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	if body.File == "" {
		return nil, transcription.Request{}, errNoFile
	}

	audio, err := decodeBase64Audio(body.File)
	if err != nil {
		return nil, transcription.Request{}, err
	}
	if err := h.checkSize(int64(len(audio))); err != nil {
		return nil, transcription.Request{}, err
	}

	return audio, transcription.Request{
		Language:    body.Language,
		Task:        body.Task,
		MinSpeakers: body.MinSpeakers,
		MaxSpeakers: body.MaxSpeakers,
	}, nil
}

func (h *TranscribeHandler) parseMultipart(c *fiber.Ctx) ([]byte, transcription.Request, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, transcription.Request{}, errNoFile
	}
	if err := h.checkSize(file.Size); err != nil {
		return nil, transcription.Request{}, err
	}

	f, err := file.Open()
	if err != nil {
		return nil, transcription.Request{}, fmt.Errorf("read upload: %w", err)
	}
	defer f.Close()

	audio, err := io.ReadAll(f)
	if err != nil {
		return nil, transcription.Request{}, fmt.Errorf("read upload: %w", err)
	}
	if len(audio) == 0 {
		return nil, transcription.Request{}, errNoFile
	}

	req := transcription.Request{
		Language: c.FormValue("language"),
		Task:     c.FormValue("task"),
	}
	if req.MinSpeakers, err = formInt(c.FormValue("min_speakers")); err != nil {
		return nil, req, fmt.Errorf("invalid min_speakers: %w", err)
	}
	if req.MaxSpeakers, err = formInt(c.FormValue("max_speakers")); err != nil {
		return nil, req, fmt.Errorf("invalid max_speakers: %w", err)
	}
	return audio, req, nil
}

func (h *TranscribeHandler) parseRaw(c *fiber.Ctx) ([]byte, transcription.Request, error) {
	body := c.Body()
	if len(body) == 0 {
		return nil, transcription.Request{}, errNoFile
	}
	if err := h.checkSize(int64(len(body))); err != nil {
		return nil, transcription.Request{}, err
	}

	req := transcription.Request{
		Language: c.Query("language"),
		Task:     c.Query("task"),
	}
	var err error
	if req.MinSpeakers, err = formInt(c.Query("min_speakers")); err != nil {
		return nil, req, fmt.Errorf("invalid min_speakers: %w", err)
	}
	if req.MaxSpeakers, err = formInt(c.Query("max_speakers")); err != nil {
		return nil, req, fmt.Errorf("invalid max_speakers: %w", err)
	}

	// fasthttp reuses the request buffer once the handler returns
	return bytes.Clone(body), req, nil
}

func (h *TranscribeHandler) checkSize(n int64) error {
	if h.maxSizeMB > 0 && n > int64(h.maxSizeMB)*1024*1024 {
		return errTooLarge
	}
	return nil
}

// decodeBase64Audio accepts plain base64 or a data URI
func decodeBase64Audio(s string) ([]byte, error) {
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSpace(s)

	audio, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		audio, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("file is not valid base64: %w", err)
	}
	if len(audio) == 0 {
		return nil, errNoFile
	}
	return audio, nil
}

func formInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// errorResponse writes the failure envelope used for requests rejected
// before they reach the pipeline
func errorResponse(c *fiber.Ctx, status int, msg, code string) error {
	return c.Status(status).JSON(fiber.Map{
		"text":     "",
		"segments": []types.SpeakerSegment{},
		"language": types.LanguageUnknown,
		"duration": 0,
		"success":  false,
		"error":    msg,
		"code":     code,
	})
}
