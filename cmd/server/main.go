package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/codebuildervaibhav/transcribe-worker/internal/cleanup"
	"github.com/codebuildervaibhav/transcribe-worker/internal/config"
	"github.com/codebuildervaibhav/transcribe-worker/internal/handlers"
	"github.com/codebuildervaibhav/transcribe-worker/internal/inference"
	"github.com/codebuildervaibhav/transcribe-worker/internal/logging"
	"github.com/codebuildervaibhav/transcribe-worker/internal/queue"
	"github.com/codebuildervaibhav/transcribe-worker/internal/storage"
	"github.com/codebuildervaibhav/transcribe-worker/internal/transcription"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "transcribe-worker",
		Short: "WhisperX transcription worker",
		Long: `Transcribe-worker serves speech-to-text requests. Each request runs
recognition, word alignment and speaker diarization on a WhisperX model
server; alignment and diarization failures degrade the result instead of
failing it.`,
		SilenceUsage: true,
		RunE:         runServer,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "config/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfig, "Path to config file")

	rootCmd.AddCommand(modelsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func modelsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Print the model catalog as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			catalog, err := storage.NewModelCatalog(cfg.Storage.Database)
			if err != nil {
				return err
			}
			defer catalog.Close()

			models, err := catalog.ListModels(cmd.Context(), limit)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(models)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum rows to print")
	return cmd
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logBuffer := logging.NewLogBuffer(1000)
	log := logging.New(cfg.Log.Level, logBuffer)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cleanup.EnsureTempDirExists(cfg.Storage.TempDir); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	log.Info("temp directory ready", "dir", cfg.Storage.TempDir)

	catalog, err := storage.NewModelCatalog(cfg.Storage.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize model catalog: %w", err)
	}
	defer catalog.Close()

	client := inference.NewClient(cfg.ModelServer.URL, cfg.ModelServer.APIKey, cfg.ModelServerTimeout(), log)
	if err := client.Health(ctx); err != nil {
		log.Warn("model server health check failed, loading anyway", "url", cfg.ModelServer.URL, "error", err)
	}

	bundle, err := transcription.NewModelBundle(ctx, client, transcription.BundleConfig{
		RecognitionModel: cfg.Whisper.Model,
		Device:           cfg.Whisper.Device,
		ComputeType:      cfg.Whisper.ComputeType,
		CacheDir:         cfg.Whisper.CacheDir,
		DefaultLanguage:  cfg.Alignment.DefaultLanguage,
		DiarizationModel: cfg.Diarization.Model,
		DiarizationToken: cfg.Diarization.AuthToken,
		LoadAttempts:     cfg.Models.LoadAttempts,
		RetryDelay:       time.Second,
	}, catalog, log)
	if err != nil {
		return err
	}

	pipeline := transcription.NewPipeline(
		transcription.NewLoader(cfg.Storage.TempDir, log),
		bundle,
		transcription.PipelineConfig{
			ModelName:        cfg.ModelName(),
			BatchSize:        cfg.Whisper.BatchSize,
			FallbackLanguage: cfg.Alignment.DefaultLanguage,
			Diarize: transcription.DiarizeOptions{
				MinSpeakers: cfg.Diarization.MinSpeakers,
				MaxSpeakers: cfg.Diarization.MaxSpeakers,
			},
		},
		log,
	)

	workerPool := queue.NewWorkerPool(cfg.Workers.Count, cfg.Workers.QueueSize, pipeline, cfg.RequestTimeout(), log)
	workerPool.Start()

	cleanupScheduler := cleanup.NewScheduler(
		cfg.Storage.TempDir,
		time.Duration(cfg.Cleanup.IntervalMinutes)*time.Minute,
		time.Duration(cfg.Cleanup.MaxAgeHours)*time.Hour,
		log,
	)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	// Base64 JSON bodies are a third larger than the audio they carry
	maxBytes := cfg.Limits.MaxFileSizeMB * 1024 * 1024
	app := fiber.New(fiber.Config{
		BodyLimit:             maxBytes/3*4 + 1024*1024,
		ErrorHandler:          handlers.ErrorHandler(log),
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(logger.New(logger.Config{
		Output: io.MultiWriter(os.Stdout, logBuffer),
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))

	transcribeHandler := handlers.NewTranscribeHandler(workerPool, cfg.Limits.MaxFileSizeMB, log)
	streamHandler := handlers.NewStreamHandler(workerPool, cfg.Limits.MaxFileSizeMB, log)
	statusHandler := handlers.NewStatusHandler(bundle, catalog, cfg.ModelName())

	app.Get("/health", statusHandler.Health)
	app.Get("/models", statusHandler.Models)
	app.Post("/transcribe", transcribeHandler.Handle)
	app.Get("/ws/transcribe", websocket.New(streamHandler.Handle))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/logs", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"logs": logBuffer.GetLogs(),
		})
	})

	go func() {
		<-ctx.Done()
		log.Info("shutting down gracefully")
		if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Info("server starting",
		"addr", addr,
		"model", cfg.ModelName(),
		"workers", cfg.Workers.Count,
		"diarization", bundle.DiarizationEnabled())

	err = app.Listen(addr)
	workerPool.Stop()
	if err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
