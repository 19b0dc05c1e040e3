// Package pipeline is the bounded-concurrency Upload/Download Pipeline
// (UDP, §4.7): it accepts Upload and Download tasks, caps in-flight
// transfers with a weighted semaphore, streams bytes while reporting
// progress, and retries retryable failures with backoff before emitting
// a size-classified error event.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/kalervo/syncdaemon/internal/events"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/remoteapi"
)

// maxTaskRetries bounds how many times a retryable failure requeues a
// task before it is surfaced as an error.
const maxTaskRetries = 3

// RemoteAPI is the subset of remoteapi.Client the pipeline depends on.
// Defined at the consumer so tests can inject a fake.
type RemoteAPI interface {
	UploadWithProgress(ctx context.Context, workspace model.WorkspaceID, localPath string, parentID model.EntryID, report remoteapi.ProgressFunc) (model.RemoteEntry, error)
	DownloadWithProgress(ctx context.Context, workspace model.WorkspaceID, entry model.RemoteEntry, destDir string, report remoteapi.ProgressFunc) (string, error)
}

// UploadTask uploads localPath into parentID within workspace.
type UploadTask struct {
	Workspace model.WorkspaceID
	LocalPath string
	ParentID  model.EntryID
}

// DownloadTask downloads entry into destDir within workspace.
type DownloadTask struct {
	Workspace model.WorkspaceID
	Entry     model.RemoteEntry
	DestDir   string
}

// Pipeline runs Upload and Download tasks with bounded concurrency.
type Pipeline struct {
	api RemoteAPI
	sem *semaphore.Weighted
	bus *events.Bus
	log *slog.Logger

	sleepFunc func(context.Context, time.Duration) error
}

// New creates a Pipeline allowing up to maxConcurrent tasks in flight at
// once.
func New(api RemoteAPI, maxConcurrent int64, bus *events.Bus, logger *slog.Logger) *Pipeline {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		api:       api,
		sem:       semaphore.NewWeighted(maxConcurrent),
		bus:       bus,
		log:       logger,
		sleepFunc: sleepCtx,
	}
}

// Upload runs a single upload task, acquiring a semaphore slot and
// retrying retryable failures with backoff. It returns the uploaded
// entry, or an error once retries are exhausted.
func (p *Pipeline) Upload(ctx context.Context, task UploadTask) (model.RemoteEntry, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return model.RemoteEntry{}, err
	}
	defer p.sem.Release(1)

	taskID := uuid.NewString()
	report := p.progressReporter(events.StageUpload, taskID, task.LocalPath)

	var lastErr error

	for attempt := 0; attempt <= maxTaskRetries; attempt++ {
		entry, err := p.api.UploadWithProgress(ctx, task.Workspace, task.LocalPath, task.ParentID, report)
		if err == nil {
			p.bus.Publish(events.Event{At: time.Now(), Completion: &events.CompletionEvent{
				Stage: events.StageUpload, TaskID: taskID, CurrentPath: task.LocalPath,
			}})

			return entry, nil
		}

		lastErr = err

		if !isRetryableTaskError(err) || attempt == maxTaskRetries {
			break
		}

		if sleepErr := p.sleepFunc(ctx, backoffFor(attempt)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	size := fileSizeOrZero(task.LocalPath)
	p.bus.Publish(events.Event{At: time.Now(), Error: &events.ErrorEvent{
		Stage: events.StageUpload, TaskID: taskID, CurrentPath: task.LocalPath,
		Message: classifyFailureMessage(size, lastErr),
	}})

	return model.RemoteEntry{}, lastErr
}

// Download runs a single download task with the same retry/backoff and
// event semantics as Upload.
func (p *Pipeline) Download(ctx context.Context, task DownloadTask) (string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	taskID := uuid.NewString()
	report := p.progressReporter(events.StageDownload, taskID, task.Entry.Name)

	var lastErr error

	for attempt := 0; attempt <= maxTaskRetries; attempt++ {
		path, err := p.api.DownloadWithProgress(ctx, task.Workspace, task.Entry, task.DestDir, report)
		if err == nil {
			p.bus.Publish(events.Event{At: time.Now(), Completion: &events.CompletionEvent{
				Stage: events.StageDownload, TaskID: taskID, CurrentPath: task.Entry.Name,
			}})

			return path, nil
		}

		lastErr = err

		if !isRetryableTaskError(err) || attempt == maxTaskRetries {
			break
		}

		if sleepErr := p.sleepFunc(ctx, backoffFor(attempt)); sleepErr != nil {
			lastErr = sleepErr
			break
		}
	}

	p.bus.Publish(events.Event{At: time.Now(), Error: &events.ErrorEvent{
		Stage: events.StageDownload, TaskID: taskID, CurrentPath: task.Entry.Name,
		Message: classifyFailureMessage(task.Entry.Size, lastErr),
	}})

	return "", lastErr
}

// RunAll runs every upload and download task concurrently (bounded by
// the pipeline's semaphore), using errgroup to propagate the first
// error and cancel the rest cooperatively. Either slice may be nil.
func (p *Pipeline) RunAll(ctx context.Context, uploads []UploadTask, downloads []DownloadTask) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, t := range uploads {
		t := t
		g.Go(func() error {
			_, err := p.Upload(ctx, t)
			return err
		})
	}

	for _, t := range downloads {
		t := t
		g.Go(func() error {
			_, err := p.Download(ctx, t)
			return err
		})
	}

	return g.Wait()
}

// progressReporter returns a remoteapi.ProgressFunc that publishes a
// ProgressEvent carrying a rolling transfer rate, and logs the
// human-readable rate at Debug via go-humanize for the CLI status line.
func (p *Pipeline) progressReporter(stage events.Stage, taskID, path string) func(transferred, total int64) {
	start := time.Now()

	return func(transferred, total int64) {
		elapsed := time.Since(start).Seconds()

		var rate float64
		if elapsed > 0 {
			rate = float64(transferred) / elapsed
		}

		p.bus.Publish(events.Event{At: time.Now(), Progress: &events.ProgressEvent{
			Stage: stage, TaskID: taskID, CurrentPath: path,
			BytesTransferred: transferred, BytesTotal: total, RateBytesPerSec: rate,
		}})

		p.log.Debug("transfer progress",
			slog.String("path", path),
			slog.String("transferred", humanize.Bytes(uint64(transferred))),
			slog.String("rate", humanize.Bytes(uint64(rate))+"/s"))
	}
}

func isRetryableTaskError(err error) bool {
	return errors.Is(err, remoteapi.ErrThrottled) ||
		errors.Is(err, remoteapi.ErrServerError) ||
		errors.Is(err, remoteapi.ErrUnprocessable)
}

// classifyFailureMessage produces the size-classified, user-oriented
// message required by §4.7's failure semantics.
func classifyFailureMessage(size int64, err error) string {
	const (
		largeThreshold  = 100 << 20
		mediumThreshold = 50 << 20
	)

	switch {
	case errors.Is(err, remoteapi.ErrQuotaExceeded):
		return "storage quota exceeded"
	case size > largeThreshold:
		return "server rejected the file"
	case size > mediumThreshold:
		return "file may be too large"
	default:
		return "network error"
	}
}

func fileSizeOrZero(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}

	return info.Size()
}

func backoffFor(attempt int) time.Duration {
	base := time.Second << attempt // 1s, 2s, 4s, ...

	const maxBackoff = 30 * time.Second
	if base > maxBackoff {
		base = maxBackoff
	}

	return base
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
