// Package pipeline wires adapters, stores and the queue into a running
// orchestrator.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/forPelevin/clipforge/internal/artifacts"
	"github.com/forPelevin/clipforge/internal/config"
	"github.com/forPelevin/clipforge/internal/domain/highlights"
	"github.com/forPelevin/clipforge/internal/orchestrator"
	"github.com/forPelevin/clipforge/internal/ports"
	"github.com/forPelevin/clipforge/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipforge/internal/ports/adapters/openrouter"
	"github.com/forPelevin/clipforge/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/clipforge/internal/progress"
	"github.com/forPelevin/clipforge/internal/queue"
	"github.com/forPelevin/clipforge/internal/store"
	"github.com/forPelevin/clipforge/internal/types"
	"github.com/forPelevin/clipforge/internal/usecase"
)

type Services struct {
	Orchestrator *orchestrator.Orchestrator
	Bus          *progress.Bus
	Artifacts    ports.ArtifactStore
	Log          logrus.FieldLogger

	cfg     config.Config
	mirror  *progress.Redis
	pool    *queue.Pool
	streams *queue.Streams
	closers []func() error
}

// Build validates cfg and connects every backend it names. Close releases them.
func Build(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.QueueBackend == config.QueueRedis && cfg.DatabaseURL == "" {
		return nil, errors.New("config: the redis queue needs DATABASE_URL so workers share job state")
	}

	// adapters
	v := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)
	asr := whispercpp.New(cfg.WhisperBin, cfg.WhisperModel, cfg.WhisperThreads)
	llm := openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)

	analyzer, err := highlights.NewAnalyzer(llm, highlights.Config{
		MaxRetries:       cfg.LLMMaxRetries,
		Backoff:          cfg.LLMRetryBackoff,
		OverlapThreshold: cfg.OverlapThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("highlight analyzer: %w", err)
	}
	uc := usecase.New(usecase.Deps{
		Video:    v,
		ASR:      asr,
		Analyzer: analyzer,
		Log:      log,
	}, usecase.Config{
		ClipCount:   cfg.ClipsDefault,
		MinDuration: cfg.ClipMin,
		MaxDuration: cfg.ClipMax,
		Parallelism: cfg.ClipParallelism,
		ChunkLength: cfg.ChunkLength,
	})

	s := &Services{Log: log, cfg: cfg, Bus: progress.NewBus(0)}
	ok := false
	defer func() {
		if !ok {
			_ = s.Close(context.Background())
		}
	}()

	jobs, err := s.jobStore(ctx)
	if err != nil {
		return nil, err
	}
	if s.Artifacts, err = s.artifactStore(ctx); err != nil {
		return nil, err
	}

	sinks := progress.Fanout{s.Bus}
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		s.closers = append(s.closers, rdb.Close)
		s.mirror = progress.NewRedis(rdb)
		sinks = append(sinks, s.mirror)
	}

	var q ports.Queue
	switch cfg.QueueBackend {
	case config.QueueRedis:
		host, _ := os.Hostname()
		s.streams, err = queue.NewStreams(ctx, rdb, host, log,
			queue.WithClaimIdle(2*cfg.JobLeaseTTL),
			queue.WithHandlerTimeout(cfg.JobTimeout),
		)
		if err != nil {
			return nil, err
		}
		q = s.streams
	default:
		s.pool = queue.NewPool(log,
			queue.WithWorkers(cfg.JobWorkers),
			queue.WithQueueSize(cfg.JobQueueSize),
			queue.WithJobTimeout(cfg.JobTimeout),
		)
		q = s.pool
	}

	s.Orchestrator = orchestrator.New(orchestrator.Deps{
		Store:     jobs,
		Artifacts: s.Artifacts,
		Queue:     q,
		Progress:  sinks,
		Runner:    uc,
		Prober:    v,
		Log:       log,
		WorkDir:   cfg.WorkDir,
		Defaults: types.StartParams{
			ClipCount:   cfg.ClipsDefault,
			MinDuration: cfg.ClipMin,
			MaxDuration: cfg.ClipMax,
		},
		LeaseTTL: cfg.JobLeaseTTL,
	})
	ok = true
	return s, nil
}

func (s *Services) jobStore(ctx context.Context) (ports.JobStore, error) {
	if s.cfg.DatabaseURL == "" {
		return store.NewMemory(), nil
	}
	pg, err := store.OpenPostgres(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, pg.Close)
	return pg, nil
}

func (s *Services) artifactStore(ctx context.Context) (ports.ArtifactStore, error) {
	if s.cfg.S3Endpoint == "" {
		return artifacts.NewLocal(s.cfg.ArtifactDir)
	}
	return artifacts.NewS3(ctx, artifacts.S3Config{
		Endpoint:  s.cfg.S3Endpoint,
		AccessKey: s.cfg.S3AccessKey,
		SecretKey: s.cfg.S3SecretKey,
		Bucket:    s.cfg.S3Bucket,
		UseSSL:    s.cfg.S3UseSSL,
	})
}

// LocalQueue reports whether jobs execute inside this process.
func (s *Services) LocalQueue() bool { return s.pool != nil }

// StartWorkers runs the in-process pool. It is a no-op for the redis queue.
func (s *Services) StartWorkers(ctx context.Context) {
	if s.pool != nil {
		s.pool.Start(ctx, s.Orchestrator.Execute)
	}
}

// Consume serves the redis queue until ctx is done.
func (s *Services) Consume(ctx context.Context) error {
	if s.streams == nil {
		return errors.New("worker needs QUEUE_BACKEND=redis")
	}
	return s.streams.Consume(ctx, s.Orchestrator.Execute)
}

// Wait follows a job until it is terminal and calls onEvent once per newer
// record version. Events published by this process are replayed from the
// bus in order. Jobs run elsewhere are followed through the redis mirror and
// the store, checked every interval.
func (s *Services) Wait(ctx context.Context, id string, every time.Duration, onEvent func(types.ProgressEvent)) (types.Job, error) {
	wake, release := s.Bus.Subscribe(0)
	defer release()
	t := time.NewTicker(every)
	defer t.Stop()

	var (
		seq  uint64
		last int64
	)
	emit := func(ev types.ProgressEvent) {
		if ev.Version <= last {
			return
		}
		last = ev.Version
		if onEvent != nil {
			onEvent(ev)
		}
	}
	for {
		for _, ev := range s.Bus.Since(id, seq) {
			seq = ev.Seq
			emit(ev)
		}
		job, err := s.Orchestrator.Status(ctx, id)
		if err != nil {
			return types.Job{}, err
		}
		if job.Version > last {
			emit(s.remoteEvent(ctx, job))
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-wake:
		case <-t.C:
		}
	}
}

// remoteEvent prefers the mirrored event of job, which carries the
// publisher's timestamp, over one rebuilt from the record.
func (s *Services) remoteEvent(ctx context.Context, job types.Job) types.ProgressEvent {
	if s.mirror != nil {
		ev, ok, err := s.mirror.Latest(ctx, job.ID)
		if err != nil {
			s.Log.WithError(err).WithField("job_id", job.ID).Debug("read mirrored progress")
		}
		if ok && ev.Version == job.Version {
			return ev
		}
	}
	return job.Event()
}

// URL is a download location for key: a presigned link for S3, a file path
// otherwise.
func (s *Services) URL(ctx context.Context, key string) (string, error) {
	switch a := s.Artifacts.(type) {
	case *artifacts.S3:
		return a.URL(ctx, key)
	case *artifacts.Local:
		return a.Path(key)
	}
	return "", fmt.Errorf("artifact store %T has no urls", s.Artifacts)
}

func (s *Services) Close(ctx context.Context) error {
	var errList []error
	if s.pool != nil {
		if err := s.pool.Shutdown(ctx); err != nil {
			errList = append(errList, fmt.Errorf("drain workers: %w", err))
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errList = append(errList, err)
		}
	}
	s.closers = nil
	return errors.Join(errList...)
}

// RunDir names a fresh download directory for a job's artifacts:
// <root>/<source name>-<utc timestamp>-<suffix>.
func RunDir(outRoot, source string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", source, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var (
	_ ports.VideoTool         = (*ffmpeg.Adapter)(nil)
	_ ports.ASR               = (*whispercpp.Adapter)(nil)
	_ ports.LLM               = (*openrouter.Adapter)(nil)
	_ ports.HighlightAnalyzer = (*highlights.Analyzer)(nil)
	_ orchestrator.Runner     = usecase.Usecase{}
)
