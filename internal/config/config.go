// Package config reads clipforge settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/clipforge/internal/ports/adapters/openrouter"
)

const (
	QueueLocal = "local"
	QueueRedis = "redis"
)

type Config struct {
	WorkDir     string
	ArtifactDir string

	FFmpegPath  string
	FFprobePath string

	WhisperBin     string
	WhisperModel   string
	WhisperThreads int
	ChunkLength    time.Duration

	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string
	LLMMaxRetries          int
	LLMRetryBackoff        time.Duration

	ClipMin          time.Duration
	ClipMax          time.Duration
	OverlapThreshold float64
	ClipsDefault     int
	ClipParallelism  int
	JobWorkers       int
	JobQueueSize     int
	JobTimeout       time.Duration
	JobLeaseTTL      time.Duration

	DatabaseURL string

	QueueBackend  string
	RedisAddr     string
	RedisPassword string

	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool

	LogLevel  string
	LogFormat string
}

// Load reads the environment. Unset variables take their defaults; malformed
// values are reported together.
func Load() (Config, error) {
	var p parser
	c := Config{
		WorkDir:     p.str("CLIPFORGE_WORK_DIR", ".cache"),
		ArtifactDir: p.str("CLIPFORGE_ARTIFACT_DIR", "out"),

		FFmpegPath:  p.str("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: p.str("FFPROBE_PATH", "ffprobe"),

		WhisperBin:     p.str("WHISPER_BIN", ".cache/bin/whisper.cpp"),
		WhisperModel:   p.str("WHISPER_MODEL", ".cache/models/ggml-base.bin"),
		WhisperThreads: p.integer("WHISPER_THREADS", 0),
		ChunkLength:    p.seconds("WHISPER_CHUNK_SECONDS", 600),

		OpenRouterAPIKey:       p.str("OPENROUTER_API_KEY", ""),
		OpenRouterModel:        p.str("OPENROUTER_MODEL", "z-ai/glm-4.5-air:free"),
		OpenRouterBaseURL:      p.str("OPENROUTER_BASE_URL", "https://openrouter.ai"),
		OpenRouterAllowedHosts: p.list("OPENROUTER_ALLOWED_HOSTS"),
		LLMMaxRetries:          p.integer("LLM_MAX_RETRIES", 2),
		LLMRetryBackoff:        p.duration("LLM_RETRY_BACKOFF", 2*time.Second),

		ClipMin:          p.seconds("CLIP_MIN_SECONDS", 15),
		ClipMax:          p.seconds("CLIP_MAX_SECONDS", 60),
		OverlapThreshold: p.number("CLIP_OVERLAP_THRESHOLD", 0.3),
		ClipsDefault:     p.integer("CLIPS_DEFAULT", 3),
		ClipParallelism:  p.integer("CLIP_PARALLELISM", 2),
		JobWorkers:       p.integer("JOB_WORKERS", 2),
		JobQueueSize:     p.integer("JOB_QUEUE_SIZE", 256),
		JobTimeout:       p.duration("JOB_TIMEOUT", 3*time.Hour),
		JobLeaseTTL:      p.duration("JOB_LEASE_TTL", 2*time.Minute),

		DatabaseURL: p.str("DATABASE_URL", ""),

		QueueBackend:  strings.ToLower(p.str("QUEUE_BACKEND", QueueLocal)),
		RedisAddr:     p.str("REDIS_ADDR", ""),
		RedisPassword: p.str("REDIS_PASSWORD", ""),

		S3Endpoint:  p.str("S3_ENDPOINT", ""),
		S3AccessKey: p.str("S3_ACCESS_KEY", ""),
		S3SecretKey: p.str("S3_SECRET_KEY", ""),
		S3Bucket:    p.str("S3_BUCKET", "clipforge"),
		S3UseSSL:    p.flag("S3_USE_SSL", false),

		LogLevel:  p.str("LOG_LEVEL", "info"),
		LogFormat: p.str("LOG_FORMAT", "json"),
	}
	return c, errors.Join(p.errs...)
}

func (c Config) Validate() error {
	if c.WorkDir == "" {
		return errors.New("work dir is empty")
	}
	if c.ArtifactDir == "" && c.S3Endpoint == "" {
		return errors.New("artifact dir is empty")
	}
	if c.ChunkLength <= 0 {
		return fmt.Errorf("whisper chunk length must be > 0")
	}
	if c.ClipMin <= 0 {
		return fmt.Errorf("min clip must be > 0")
	}
	if c.ClipMax <= 0 {
		return fmt.Errorf("max clip must be > 0")
	}
	if c.ClipMin > c.ClipMax {
		return fmt.Errorf("min clip must be <= max clip")
	}
	if c.OverlapThreshold <= 0 || c.OverlapThreshold > 1 {
		return fmt.Errorf("overlap threshold must be in (0, 1]")
	}
	if c.ClipsDefault <= 0 {
		return fmt.Errorf("default clip count must be > 0")
	}
	if c.ClipParallelism <= 0 || c.JobWorkers <= 0 {
		return fmt.Errorf("clip parallelism and job workers must be > 0")
	}
	if c.JobQueueSize <= 0 || c.JobTimeout <= 0 {
		return fmt.Errorf("job queue size and job timeout must be > 0")
	}
	if c.JobLeaseTTL < 3*time.Second {
		return fmt.Errorf("job lease ttl must be at least 3s")
	}
	if c.LLMMaxRetries < 0 {
		return fmt.Errorf("llm max retries must be >= 0")
	}
	switch c.QueueBackend {
	case QueueLocal:
	case QueueRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR is required for the redis queue")
		}
	default:
		return fmt.Errorf("unknown queue backend %q", c.QueueBackend)
	}
	if c.S3Endpoint != "" && (c.S3AccessKey == "" || c.S3SecretKey == "" || c.S3Bucket == "") {
		return errors.New("S3_ACCESS_KEY, S3_SECRET_KEY and S3_BUCKET are required with S3_ENDPOINT")
	}
	if c.WhisperModel == "" {
		return fmt.Errorf("whisper model path is required")
	}
	return openrouter.ValidateBaseURL(c.OpenRouterBaseURL, c.OpenRouterAllowedHosts)
}

// RequireLLM reports whether highlight analysis can run.
func (c Config) RequireLLM() error {
	if c.OpenRouterAPIKey == "" {
		return errors.New("OPENROUTER_API_KEY is required (set it in .env)")
	}
	return nil
}

type parser struct {
	errs []error
}

func (p *parser) str(k, def string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return v
}

func (p *parser) integer(k string, def int) int {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func (p *parser) number(k string, def float64) float64 {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return f
}

func (p *parser) flag(k string, def bool) bool {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}

// seconds accepts a plain number of seconds.
func (p *parser) seconds(k string, def float64) time.Duration {
	return time.Duration(p.number(k, def) * float64(time.Second))
}

func (p *parser) duration(k string, def time.Duration) time.Duration {
	v := p.str(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func (p *parser) list(k string) []string {
	v := p.str(k, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
