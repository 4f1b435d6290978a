package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server struct {
		Port int    `yaml:"port" env:"PORT"`
		Host string `yaml:"host" env:"HOST"`
	} `yaml:"server"`

	ModelServer struct {
		URL            string `yaml:"url" env:"WHISPERX_ENDPOINT"`
		APIKey         string `yaml:"api_key" env:"WHISPERX_API_KEY"`
		TimeoutMinutes int    `yaml:"timeout_minutes" env:"WHISPERX_TIMEOUT_MINUTES"`
	} `yaml:"model_server"`

	Whisper struct {
		Model       string `yaml:"model" env:"WHISPER_MODEL"`
		Device      string `yaml:"device" env:"WHISPER_DEVICE"`
		ComputeType string `yaml:"compute_type" env:"WHISPER_COMPUTE_TYPE"`
		BatchSize   int    `yaml:"batch_size" env:"WHISPER_BATCH_SIZE"`
		CacheDir    string `yaml:"cache_dir" env:"MODEL_CACHE_DIR"`
	} `yaml:"whisper"`

	Alignment struct {
		DefaultLanguage string `yaml:"default_language" env:"ALIGN_DEFAULT_LANGUAGE"`
	} `yaml:"alignment"`

	Diarization struct {
		Model       string `yaml:"model" env:"DIARIZE_MODEL"`
		AuthToken   string `yaml:"-" env:"HUGGINGFACE_TOKEN"`
		MinSpeakers int    `yaml:"min_speakers" env:"DIARIZE_MIN_SPEAKERS"`
		MaxSpeakers int    `yaml:"max_speakers" env:"DIARIZE_MAX_SPEAKERS"`
	} `yaml:"diarization"`

	Models struct {
		LoadAttempts int `yaml:"load_attempts" env:"MODEL_LOAD_ATTEMPTS"`
	} `yaml:"models"`

	Workers struct {
		Count     int `yaml:"count" env:"WORKER_COUNT"`
		QueueSize int `yaml:"queue_size" env:"WORKER_QUEUE_SIZE"`
	} `yaml:"workers"`

	Storage struct {
		TempDir  string `yaml:"temp_dir" env:"TEMP_DIR"`
		Database string `yaml:"database" env:"CATALOG_DATABASE"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" env:"CLEANUP_INTERVAL_MINUTES"`
		MaxAgeHours     int `yaml:"max_age_hours" env:"CLEANUP_MAX_AGE_HOURS"`
	} `yaml:"cleanup"`

	Limits struct {
		MaxFileSizeMB         int `yaml:"max_file_size_mb" env:"MAX_FILE_SIZE_MB"`
		RequestTimeoutMinutes int `yaml:"request_timeout_minutes" env:"REQUEST_TIMEOUT_MINUTES"`
	} `yaml:"limits"`

	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
}

// Load reads the YAML file at path, applies environment overrides and fills
// in defaults. A missing file is not an error; the worker can run from
// environment variables alone.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(file, &config); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		}
	}

	if err := env.Parse(&config); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.ModelServer.URL == "" {
		c.ModelServer.URL = "http://127.0.0.1:9000"
	}
	if c.ModelServer.TimeoutMinutes == 0 {
		c.ModelServer.TimeoutMinutes = 30
	}
	if c.Whisper.Model == "" {
		c.Whisper.Model = "large-v2"
	}
	if c.Whisper.Device == "" {
		c.Whisper.Device = "cuda"
	}
	if c.Whisper.ComputeType == "" {
		c.Whisper.ComputeType = "float16"
	}
	if c.Whisper.BatchSize == 0 {
		c.Whisper.BatchSize = 16
	}
	if c.Whisper.CacheDir == "" {
		c.Whisper.CacheDir = "/cache"
	}
	if c.Alignment.DefaultLanguage == "" {
		c.Alignment.DefaultLanguage = "en"
	}
	if c.Diarization.Model == "" {
		c.Diarization.Model = "pyannote/speaker-diarization-3.1"
	}
	if c.Models.LoadAttempts == 0 {
		c.Models.LoadAttempts = 3
	}
	if c.Workers.Count == 0 {
		c.Workers.Count = 10
	}
	if c.Workers.QueueSize == 0 {
		c.Workers.QueueSize = 100
	}
	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "temp"
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "models.db"
	}
	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 30
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 2
	}
	if c.Limits.MaxFileSizeMB == 0 {
		c.Limits.MaxFileSizeMB = 500
	}
	if c.Limits.RequestTimeoutMinutes == 0 {
		c.Limits.RequestTimeoutMinutes = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks values that cannot be defaulted
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Whisper.BatchSize < 0 {
		return fmt.Errorf("whisper batch_size must be positive, got %d", c.Whisper.BatchSize)
	}
	if c.Workers.Count < 0 {
		return fmt.Errorf("workers count must be positive, got %d", c.Workers.Count)
	}
	if c.Diarization.MinSpeakers < 0 || c.Diarization.MaxSpeakers < 0 {
		return errors.New("diarization speaker bounds must not be negative")
	}
	if c.Diarization.MaxSpeakers > 0 && c.Diarization.MinSpeakers > c.Diarization.MaxSpeakers {
		return fmt.Errorf("diarization min_speakers %d exceeds max_speakers %d",
			c.Diarization.MinSpeakers, c.Diarization.MaxSpeakers)
	}
	return nil
}

// RequestTimeout is the ceiling for one transcription request
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Limits.RequestTimeoutMinutes) * time.Minute
}

// ModelServerTimeout bounds a single call to the model server
func (c *Config) ModelServerTimeout() time.Duration {
	return time.Duration(c.ModelServer.TimeoutMinutes) * time.Minute
}

// ModelName is the name reported in every successful result
func (c *Config) ModelName() string {
	return "whisperx-" + c.Whisper.Model
}
