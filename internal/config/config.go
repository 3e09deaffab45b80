package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the service. Values are layered as
// defaults, then the optional YAML file named by CONFIG_FILE, then the
// process environment (after .env has been merged into it).
type Config struct {
	Port string `yaml:"port"`

	Media struct {
		FFmpegPath  string `yaml:"ffmpeg_path"`
		FFprobePath string `yaml:"ffprobe_path"`
	} `yaml:"media"`

	Transcribe struct {
		URL                string `yaml:"url"`
		APIKey             string `yaml:"api_key"`
		Model              string `yaml:"model"`
		Language           string `yaml:"language"`
		Mock               bool   `yaml:"mock"`
		TimeoutSec         int    `yaml:"timeout_sec"`
		RetryMaxElapsedSec int    `yaml:"retry_max_elapsed_sec"`
	} `yaml:"transcribe"`

	Pipeline struct {
		SegmentSeconds     int    `yaml:"segment_seconds"`
		Concurrency        int    `yaml:"concurrency"`
		ScratchDir         string `yaml:"scratch_dir"`
		DownloadTimeoutSec int    `yaml:"download_timeout_sec"`
		JobTimeoutSec      int    `yaml:"job_timeout_sec"`
	} `yaml:"pipeline"`

	Cache struct {
		RedisAddr string `yaml:"redis_addr"`
		TTLSec    int    `yaml:"ttl_sec"`
	} `yaml:"cache"`

	Janitor struct {
		Schedule  string `yaml:"schedule"`
		MaxAgeMin int    `yaml:"max_age_min"`
	} `yaml:"janitor"`

	Dataset struct {
		Path       string `yaml:"path"`
		ReportPath string `yaml:"report_path"`
	} `yaml:"dataset"`
}

// Defaults returns the baseline configuration.
func Defaults() Config {
	var cfg Config
	cfg.Port = "8080"
	cfg.Media.FFmpegPath = "ffmpeg"
	cfg.Media.FFprobePath = "ffprobe"
	cfg.Transcribe.URL = "https://api.openai.com/v1"
	cfg.Transcribe.Model = "whisper-1"
	cfg.Transcribe.Language = "en"
	cfg.Transcribe.TimeoutSec = 60
	cfg.Transcribe.RetryMaxElapsedSec = 30
	cfg.Pipeline.SegmentSeconds = 120
	cfg.Pipeline.Concurrency = 4
	cfg.Pipeline.ScratchDir = os.TempDir()
	cfg.Pipeline.DownloadTimeoutSec = 120
	cfg.Pipeline.JobTimeoutSec = 900
	cfg.Cache.TTLSec = 86400
	cfg.Janitor.Schedule = "@every 15m"
	cfg.Janitor.MaxAgeMin = 120
	cfg.Dataset.ReportPath = "transcription_report.xlsx"
	return cfg
}

// Load builds the runtime configuration.
func Load() (Config, error) {
	_ = godotenv.Load() // loads .env

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile decodes a YAML file over cfg. Keys absent from the file keep
// their current values.
func LoadFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	if c.Pipeline.SegmentSeconds <= 0 {
		return errors.New("pipeline.segment_seconds must be positive")
	}
	if c.Pipeline.Concurrency <= 0 {
		return errors.New("pipeline.concurrency must be positive")
	}
	if !c.Transcribe.Mock && strings.TrimSpace(c.Transcribe.URL) == "" {
		return errors.New("TRANSCRIBE_URL not set")
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Port = envOr("PORT", cfg.Port)
	cfg.Media.FFmpegPath = envOr("FFMPEG_PATH", cfg.Media.FFmpegPath)
	cfg.Media.FFprobePath = envOr("FFPROBE_PATH", cfg.Media.FFprobePath)

	cfg.Transcribe.URL = envOr("TRANSCRIBE_URL", cfg.Transcribe.URL)
	cfg.Transcribe.APIKey = envOr("TRANSCRIBE_API_KEY", cfg.Transcribe.APIKey)
	cfg.Transcribe.Model = envOr("TRANSCRIBE_MODEL", cfg.Transcribe.Model)
	cfg.Transcribe.Language = envOr("TRANSCRIBE_LANGUAGE", cfg.Transcribe.Language)
	if v := os.Getenv("USE_MOCK_TRANSCRIBE"); v != "" {
		cfg.Transcribe.Mock = v == "true"
	}
	cfg.Transcribe.TimeoutSec = envInt("TRANSCRIBE_TIMEOUT_SEC", cfg.Transcribe.TimeoutSec)
	cfg.Transcribe.RetryMaxElapsedSec = envInt("RETRY_MAX_ELAPSED_SEC", cfg.Transcribe.RetryMaxElapsedSec)

	cfg.Pipeline.SegmentSeconds = envInt("SEGMENT_SECONDS", cfg.Pipeline.SegmentSeconds)
	cfg.Pipeline.Concurrency = envInt("CONCURRENCY", cfg.Pipeline.Concurrency)
	cfg.Pipeline.ScratchDir = envOr("SCRATCH_DIR", cfg.Pipeline.ScratchDir)
	cfg.Pipeline.DownloadTimeoutSec = envInt("DOWNLOAD_TIMEOUT_SEC", cfg.Pipeline.DownloadTimeoutSec)
	cfg.Pipeline.JobTimeoutSec = envInt("JOB_TIMEOUT_SEC", cfg.Pipeline.JobTimeoutSec)

	cfg.Cache.RedisAddr = envOr("REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.TTLSec = envInt("CACHE_TTL_SEC", cfg.Cache.TTLSec)

	cfg.Janitor.Schedule = envOr("JANITOR_SCHEDULE", cfg.Janitor.Schedule)
	cfg.Janitor.MaxAgeMin = envInt("JANITOR_MAX_AGE_MIN", cfg.Janitor.MaxAgeMin)

	cfg.Dataset.Path = envOr("DATASET_PATH", cfg.Dataset.Path)
	cfg.Dataset.ReportPath = envOr("REPORT_PATH", cfg.Dataset.ReportPath)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
