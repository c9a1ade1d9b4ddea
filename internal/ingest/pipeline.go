package ingest

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"waggletag/internal/config"
	"waggletag/internal/label"
	"waggletag/internal/layout"
	"waggletag/internal/logging"
	"waggletag/internal/scanner"
	"waggletag/internal/services"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
	"waggletag/internal/transcode"
)

// LockFileName is created under the output root for the duration of a
// run so two ingestions never race on the same library.
const LockFileName = "ingest.lock"

// stagingDirName holds freshly encoded videos until they move into their
// bucket. Living under the output root keeps that move a same-filesystem
// rename.
const stagingDirName = ".staging"

// Failure records one snippet that could not be ingested. Recoverable
// failures are worth retrying on a later run; the rest are permanent
// defects of the input or setup.
type Failure struct {
	Identity    snippet.Identity
	Err         error
	Recoverable bool
}

// Report aggregates the outcome of a pipeline run.
type Report struct {
	Ingested        int
	SkippedExisting int
	Failed          int
	Skips           []scanner.Skip
	Failures        []Failure
}

// Pipeline converts a raw detection tree into the labeled snippet
// library: encode, place into the canonical layout, and register each
// snippet in the label store.
type Pipeline struct {
	cfg     *config.Config
	labels  *store.Store
	layout  *layout.Manager
	encoder transcode.Client
	logger  *slog.Logger
}

// NewPipeline constructs a pipeline with initialized dependencies.
func NewPipeline(cfg *config.Config, labels *store.Store, lay *layout.Manager, encoder transcode.Client, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil || labels == nil || lay == nil || encoder == nil {
		return nil, errors.New("pipeline requires config, store, layout, and encoder")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		cfg:     cfg,
		labels:  labels,
		layout:  lay,
		encoder: encoder,
		logger:  logging.NewComponentLogger(logger, "ingest"),
	}, nil
}

// Run scans inputDir and ingests every healthy snippet that does not
// already have a valid video in the library. Snippets are processed by
// a bounded worker pool; one snippet failing never stops the rest.
// Rerunning after a crash or cancellation resumes where the previous
// run left off.
func (p *Pipeline) Run(ctx context.Context, inputDir string) (Report, error) {
	var report Report

	if err := os.MkdirAll(p.layout.Root(), 0o755); err != nil {
		return report, services.Wrap(services.ErrConfiguration, "ingest", "run", "create output root", err)
	}

	runLock := flock.New(filepath.Join(p.layout.Root(), LockFileName))
	locked, err := runLock.TryLock()
	if err != nil {
		return report, services.Wrap(services.ErrTransient, "ingest", "run", "acquire ingest lock", err)
	}
	if !locked {
		return report, services.Wrap(services.ErrConflict, "ingest", "run",
			"another ingestion run holds the lock for this output directory", nil)
	}
	defer func() {
		_ = runLock.Unlock()
	}()

	scanResult, err := scanner.Scan(inputDir)
	if err != nil {
		return report, err
	}
	report.Skips = scanResult.Skips
	for _, skip := range scanResult.Skips {
		p.logger.Warn("skipping malformed candidate",
			logging.String("path", skip.Path),
			logging.String("reason", skip.Reason))
	}

	workers := p.cfg.Ingest.Workers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan snippet.Snippet)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for snip := range jobs {
				outcome, err := p.process(ctx, snip)
				mu.Lock()
				switch {
				case err != nil:
					report.Failed++
					report.Failures = append(report.Failures, Failure{
						Identity:    snip.Identity,
						Err:         err,
						Recoverable: services.Recoverable(err),
					})
				case outcome == outcomeSkippedExisting:
					report.SkippedExisting++
				case outcome == outcomeFiltered:
					report.Skips = append(report.Skips, scanner.Skip{
						Path:   snip.FramesPath,
						Reason: "predicted class filtered",
					})
				default:
					report.Ingested++
				}
				mu.Unlock()
			}
		}()
	}

dispatch:
	for _, snip := range scanResult.Snippets {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- snip:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, services.Wrap(services.ErrTransient, "ingest", "run", "run canceled", err)
	}

	p.logger.Info("ingestion run complete",
		logging.Int("ingested", report.Ingested),
		logging.Int("skipped_existing", report.SkippedExisting),
		logging.Int("failed", report.Failed),
		logging.Int("malformed", len(report.Skips)))
	return report, nil
}

type processOutcome int

const (
	outcomeIngested processOutcome = iota
	outcomeSkippedExisting
	outcomeFiltered
)

func (p *Pipeline) process(ctx context.Context, snip snippet.Snippet) (processOutcome, error) {
	id := snip.Identity
	ctx = services.WithSnippetKey(ctx, id.Key())
	logger := p.logger.With(logging.String(logging.FieldSnippet, id.Key()))

	if p.cfg.Ingest.WaggleOnly && snip.Metadata != nil {
		if predicted, ok := label.ParseDanceType(snip.Metadata.PredictedClassLabel); ok && predicted != label.DanceWaggle {
			logger.Debug("filtered by predicted class",
				logging.String("predicted", snip.Metadata.PredictedClassLabel))
			return outcomeFiltered, nil
		}
	}

	seed := p.seedLabel(snip)

	// An existing valid video means a previous run already ingested this
	// snippet, possibly into a non-default bucket after relabeling.
	if existing, _, err := p.layout.Locate(id); err == nil {
		if transcode.Validate(existing, p.cfg.FFmpeg.MinOutputBytes) == nil {
			if _, _, err := p.labels.EnsureDefault(ctx, id, seed); err != nil {
				return 0, err
			}
			logger.Debug("skipping existing snippet", logging.String("video", existing))
			return outcomeSkippedExisting, nil
		}
		// Truncated leftover from an interrupted run.
		logger.Warn("replacing invalid existing video", logging.String("video", existing))
		if err := os.Remove(existing); err != nil {
			return 0, services.Wrap(services.ErrTransient, "ingest", "process", "remove invalid video", err)
		}
	} else if !errors.Is(err, services.ErrNotFound) {
		return 0, err
	}

	// The destination bucket follows the durable label, so a snippet
	// relabeled before its video went missing lands back where the
	// store says it belongs.
	current, err := p.labels.Get(ctx, id)
	if err != nil {
		return 0, err
	}

	staged := filepath.Join(p.layout.Root(), stagingDirName, id.Key()+layout.VideoExtension)
	if err := p.encoder.Encode(ctx, transcode.Request{
		Source:           snip.FramesPath,
		Destination:      staged,
		SourceIsSequence: snip.FrameCount > 0,
	}); err != nil {
		return 0, err
	}
	if _, err := p.layout.Place(id, current.TagStatus, staged); err != nil {
		return 0, err
	}

	if _, _, err := p.labels.EnsureDefault(ctx, id, seed); err != nil {
		return 0, err
	}

	logger.Info("ingested snippet", logging.String("bucket", label.Bucket(current.TagStatus)))
	return outcomeIngested, nil
}

// seedLabel builds the classifier-seeded default for a snippet. The
// seed only ever applies to snippets without an existing record, so a
// human decision is never overwritten by a rerun.
func (p *Pipeline) seedLabel(snip snippet.Snippet) *label.Label {
	if !p.cfg.Ingest.SeedPredicted || snip.Metadata == nil {
		return nil
	}
	predicted, ok := label.ParseDanceType(snip.Metadata.PredictedClassLabel)
	if !ok || predicted == label.DanceUnknown {
		return nil
	}
	seed := label.Default()
	seed.DanceType = predicted
	seed.Source = label.SourceModelPredicted
	return &seed
}
