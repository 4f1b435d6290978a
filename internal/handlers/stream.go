package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/codebuildervaibhav/transcribe-worker/internal/queue"
	"github.com/codebuildervaibhav/transcribe-worker/internal/transcription"
	"github.com/codebuildervaibhav/transcribe-worker/internal/types"
)

// streamOptions is the optional JSON text frame sent before the audio
type streamOptions struct {
	Language    string `json:"language"`
	Task        string `json:"task"`
	MinSpeakers int    `json:"min_speakers"`
	MaxSpeakers int    `json:"max_speakers"`
}

// StreamHandler handles WebSocket audio uploads. The whole recording is
// buffered until the client sends END; it is then transcribed as one file.
type StreamHandler struct {
	pool      Submitter
	maxSizeMB int
	logger    *slog.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(pool Submitter, maxSizeMB int, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		pool:      pool,
		maxSizeMB: maxSizeMB,
		logger:    logger,
	}
}

// Handle processes WebSocket connections
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	var (
		buffer   bytes.Buffer
		opts     streamOptions
		id       = uuid.New().String()
		maxBytes = int64(h.maxSizeMB) * 1024 * 1024
		logger   = h.logger.With("request_id", id)
	)

	logger.Info("websocket upload opened", "remote", c.RemoteAddr().String())

	for {
		messageType, message, err := c.ReadMessage()
		if err != nil {
			logger.Warn("websocket closed before END", "error", err)
			return
		}

		if messageType == websocket.TextMessage {
			msg := strings.TrimSpace(string(message))
			if msg == "END" {
				break
			}
			if strings.HasPrefix(msg, "{") {
				if err := json.Unmarshal([]byte(msg), &opts); err != nil {
					h.reply(c, logger, transcription.Failure(fmt.Errorf("invalid options frame: %w", err)))
					return
				}
				logger.Debug("stream options set", "language", opts.Language, "task", opts.Task)
			}
			continue
		}

		if messageType == websocket.BinaryMessage {
			buffer.Write(message)
			if maxBytes > 0 && int64(buffer.Len()) > maxBytes {
				h.reply(c, logger, transcription.Failure(fmt.Errorf("file too large (max %dMB)", h.maxSizeMB)))
				return
			}
		}
	}

	if buffer.Len() == 0 {
		h.reply(c, logger, transcription.Failure(errNoFile))
		return
	}

	logger.Info("websocket upload complete", "bytes", buffer.Len())

	job := queue.NewJob(types.SourceStream, buffer.Bytes(), transcription.Request{
		ID:          id,
		Language:    opts.Language,
		Task:        opts.Task,
		MinSpeakers: opts.MinSpeakers,
		MaxSpeakers: opts.MaxSpeakers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nothing more is expected from the client; a failed read means it hung up.
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer cancel()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	result := h.pool.Submit(ctx, job)
	if ctx.Err() != nil {
		logger.Info("client disconnected before result", "error", ctx.Err())
	} else {
		h.reply(c, logger, result)
	}

	// The conn is recycled once Handle returns, so the reader must exit first
	c.Close()
	<-readerDone
}

func (h *StreamHandler) reply(c *websocket.Conn, logger *slog.Logger, result *types.TranscriptionResult) {
	if err := c.WriteJSON(result); err != nil {
		logger.Warn("failed to send result", "error", err)
	}
}
