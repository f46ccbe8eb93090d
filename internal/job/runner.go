// Package job drives one bulk-fetch run from input files to the sink.
package job

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	gcpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	archivegcs "github.com/averres/proxyfan/internal/archive/gcs"
	archivelocal "github.com/averres/proxyfan/internal/archive/local"
	archivememory "github.com/averres/proxyfan/internal/archive/memory"
	"github.com/averres/proxyfan/internal/clock/system"
	"github.com/averres/proxyfan/internal/config"
	"github.com/averres/proxyfan/internal/dispatcher"
	"github.com/averres/proxyfan/internal/fetch"
	collyfetcher "github.com/averres/proxyfan/internal/fetcher/colly"
	"github.com/averres/proxyfan/internal/hash/sha256"
	"github.com/averres/proxyfan/internal/id/uuid"
	"github.com/averres/proxyfan/internal/proxy"
	publishermemory "github.com/averres/proxyfan/internal/publisher/memory"
	publisherpubsub "github.com/averres/proxyfan/internal/publisher/pubsub"
	"github.com/averres/proxyfan/internal/sink"
)

// Runner loads the item and proxy lists, assembles the pool and sink from
// configuration, and hands the queue to the dispatcher.
type Runner struct {
	cfg    config.Config
	logger *zap.Logger
}

// NewRunner constructs a Runner.
func NewRunner(cfg config.Config, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run executes one job. Partial output written before a fatal failure is
// preserved; there is no rollback.
func (r *Runner) Run(ctx context.Context, inputPath, proxyPath, outputPath string) error {
	if err := ValidateInputFiles(r.logger, inputPath, proxyPath); err != nil {
		return err
	}

	items, err := ReadLines(inputPath)
	if err != nil {
		return fmt.Errorf("read item list: %w", err)
	}
	addresses, err := ReadLines(proxyPath)
	if err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return fmt.Errorf("allocate run id: %w", err)
	}

	resultSink, err := r.buildSink(ctx, outputPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := resultSink.Close(); cerr != nil {
			r.logger.Warn("close sink failed", zap.Error(cerr))
		}
	}()

	archive, err := r.buildArchive(ctx)
	if err != nil {
		return err
	}
	publisher, err := r.buildPublisher(ctx)
	if err != nil {
		return err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: r.cfg.HTTP.UserAgent,
		Timeout:   r.cfg.Timeout(),
	})
	clock := system.New()
	hasher := sha256.New()

	pool := make([]*proxy.Proxy, 0, len(addresses))
	for _, address := range addresses {
		pool = append(pool, proxy.New(
			fetcher,
			resultSink,
			archive,
			publisher,
			hasher,
			clock,
			proxy.Config{
				Address:         address,
				Concurrency:     r.cfg.Worker.Concurrency,
				RetireThreshold: r.cfg.Worker.RetireThreshold,
				RunID:           runID,
				Topic:           r.cfg.Events.Topic,
				ArchivePrefix:   r.cfg.Archive.Prefix,
			},
			r.logger.Named("proxy"),
		))
	}

	r.logger.Info("job starting",
		zap.String("run_id", runID),
		zap.Int("items", len(items)),
		zap.Int("proxies", len(pool)),
	)

	if err := dispatcher.New(pool, r.logger.Named("dispatcher")).Run(ctx, items); err != nil {
		return fmt.Errorf("run %s: %w", runID, err)
	}

	if r.cfg.Sink.Backend == "file" {
		ValidateOutput(r.logger, inputPath, outputPath)
	}
	r.logger.Info("job finished", zap.String("run_id", runID))
	return nil
}

func (r *Runner) buildSink(ctx context.Context, outputPath string) (fetch.Sink, error) {
	switch r.cfg.Sink.Backend {
	case "file":
		return sink.NewFileSink(outputPath, r.logger.Named("sink")), nil
	case "postgres":
		s, err := sink.NewPostgresSink(ctx, sink.PostgresConfig{
			DSN:      r.cfg.DB.DSN,
			Table:    r.cfg.DB.Table,
			MaxConns: r.cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init postgres sink: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink backend %q", r.cfg.Sink.Backend)
	}
}

func (r *Runner) buildArchive(ctx context.Context) (fetch.Archive, error) {
	switch r.cfg.Archive.Backend {
	case "none", "":
		return nil, nil
	case "memory":
		return archivememory.New(), nil
	case "local":
		store, err := archivelocal.New(archivelocal.Config{BaseDir: r.cfg.Archive.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return store, nil
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		store, err := archivegcs.New(client, archivegcs.Config{Bucket: r.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", r.cfg.Archive.Backend)
	}
}

func (r *Runner) buildPublisher(ctx context.Context) (fetch.Publisher, error) {
	switch r.cfg.Events.Backend {
	case "none", "":
		return nil, nil
	case "memory":
		return publishermemory.New(), nil
	case "pubsub":
		client, err := gcpubsub.NewClient(ctx, r.cfg.Events.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		return publisherpubsub.New(client), nil
	default:
		return nil, fmt.Errorf("unknown events backend %q", r.cfg.Events.Backend)
	}
}

// ValidateInputFiles checks that every path exists before any network
// activity starts.
func ValidateInputFiles(logger *zap.Logger, paths ...string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if logger != nil {
				logger.Error("missing input file", zap.String("path", path))
			}
			return fmt.Errorf("input file %s: %w", path, err)
		}
	}
	return nil
}

// ReadLines loads a newline-delimited file, skipping blank lines.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}
	return lines, nil
}

// ValidateOutput compares input and output line counts after a run. A
// mismatch is logged, never treated as a failure.
func ValidateOutput(logger *zap.Logger, inputPath, outputPath string) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inputLines, err := countLines(inputPath)
	if err != nil {
		logger.Warn("count input lines failed", zap.Error(err))
		return
	}
	outputLines, err := countLines(outputPath)
	if err != nil {
		logger.Warn("count output lines failed", zap.Error(err))
		return
	}
	if inputLines != outputLines {
		logger.Warn("input and output line counts differ",
			zap.Int("input_lines", inputLines),
			zap.Int("output_lines", outputLines),
		)
		return
	}
	logger.Info("process completed with no loss of data",
		zap.Int("lines", outputLines),
	)
}

func countLines(path string) (int, error) {
	lines, err := ReadLines(path)
	if err != nil {
		return 0, err
	}
	return len(lines), nil
}
