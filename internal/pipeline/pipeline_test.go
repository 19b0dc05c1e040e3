package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalervo/syncdaemon/internal/events"
	"github.com/kalervo/syncdaemon/internal/model"
	"github.com/kalervo/syncdaemon/internal/remoteapi"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type fakeAPI struct {
	uploadCalls   atomic.Int32
	downloadCalls atomic.Int32
	uploadErrs    []error
	downloadErrs  []error
	uploadResult  model.RemoteEntry
	downloadPath  string
}

func (f *fakeAPI) UploadWithProgress(_ context.Context, _ model.WorkspaceID, _ string, _ model.EntryID, report remoteapi.ProgressFunc) (model.RemoteEntry, error) {
	i := int(f.uploadCalls.Add(1)) - 1
	if report != nil {
		report(10, 10)
	}

	if i < len(f.uploadErrs) && f.uploadErrs[i] != nil {
		return model.RemoteEntry{}, f.uploadErrs[i]
	}

	return f.uploadResult, nil
}

func (f *fakeAPI) DownloadWithProgress(_ context.Context, _ model.WorkspaceID, _ model.RemoteEntry, _ string, report remoteapi.ProgressFunc) (string, error) {
	i := int(f.downloadCalls.Add(1)) - 1
	if report != nil {
		report(10, 10)
	}

	if i < len(f.downloadErrs) && f.downloadErrs[i] != nil {
		return "", f.downloadErrs[i]
	}

	return f.downloadPath, nil
}

func noopSleep(_ context.Context, _ time.Duration) error { return nil }

func TestUploadSucceedsAndPublishesCompletion(t *testing.T) {
	api := &fakeAPI{uploadResult: model.RemoteEntry{ID: 5}}
	bus := events.NewBus(discardLogger())
	ch, unsub := bus.Subscribe()
	defer unsub()

	p := New(api, 2, bus, discardLogger())

	entry, err := p.Upload(t.Context(), UploadTask{LocalPath: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, model.EntryID(5), entry.ID)

	var sawProgress, sawCompletion bool
	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			if ev.Progress != nil {
				sawProgress = true
			}
			if ev.Completion != nil {
				sawCompletion = true
			}
		case <-time.After(time.Second):
			t.Fatal("expected events not received")
		}
	}
	assert.True(t, sawProgress)
	assert.True(t, sawCompletion)
}

func TestUploadRetriesOnThrottleThenSucceeds(t *testing.T) {
	api := &fakeAPI{uploadErrs: []error{remoteapi.ErrThrottled}}
	bus := events.NewBus(discardLogger())

	p := New(api, 2, bus, discardLogger())
	p.sleepFunc = noopSleep

	_, err := p.Upload(t.Context(), UploadTask{LocalPath: "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), api.uploadCalls.Load())
}

func TestUploadDoesNotRetryNonRetryableError(t *testing.T) {
	api := &fakeAPI{uploadErrs: []error{remoteapi.ErrBadRequest}}
	bus := events.NewBus(discardLogger())
	ch, unsub := bus.Subscribe()
	defer unsub()

	p := New(api, 2, bus, discardLogger())
	p.sleepFunc = noopSleep

	_, err := p.Upload(t.Context(), UploadTask{LocalPath: "/tmp/x"})
	require.Error(t, err)
	assert.Equal(t, int32(1), api.uploadCalls.Load())

	var sawError bool
	for {
		select {
		case ev := <-ch:
			if ev.Error != nil {
				sawError = true
			}
		case <-time.After(50 * time.Millisecond):
			assert.True(t, sawError)
			return
		}
	}
}

func TestUploadExhaustsRetriesOnPersistentServerError(t *testing.T) {
	api := &fakeAPI{uploadErrs: []error{
		remoteapi.ErrServerError, remoteapi.ErrServerError, remoteapi.ErrServerError, remoteapi.ErrServerError,
	}}
	bus := events.NewBus(discardLogger())

	p := New(api, 2, bus, discardLogger())
	p.sleepFunc = noopSleep

	_, err := p.Upload(t.Context(), UploadTask{LocalPath: "/tmp/x"})
	require.Error(t, err)
	assert.Equal(t, int32(maxTaskRetries+1), api.uploadCalls.Load())
}

func TestClassifyFailureMessageBySize(t *testing.T) {
	assert.Equal(t, "network error", classifyFailureMessage(10, errors.New("x")))
	assert.Equal(t, "file may be too large", classifyFailureMessage(60<<20, errors.New("x")))
	assert.Equal(t, "server rejected the file", classifyFailureMessage(200<<20, errors.New("x")))
	assert.Equal(t, "storage quota exceeded", classifyFailureMessage(10, remoteapi.ErrQuotaExceeded))
}

func TestBackoffForCapsAtMax(t *testing.T) {
	assert.Equal(t, time.Second, backoffFor(0))
	assert.Equal(t, 2*time.Second, backoffFor(1))
	assert.Equal(t, 30*time.Second, backoffFor(10))
}

func TestDownloadSucceeds(t *testing.T) {
	api := &fakeAPI{downloadPath: "/sync/a.txt"}
	bus := events.NewBus(discardLogger())

	p := New(api, 1, bus, discardLogger())

	path, err := p.Download(t.Context(), DownloadTask{Entry: model.RemoteEntry{Name: "a.txt"}})
	require.NoError(t, err)
	assert.Equal(t, "/sync/a.txt", path)
}

func TestRunAllRunsEveryTask(t *testing.T) {
	api := &fakeAPI{uploadResult: model.RemoteEntry{ID: 1}, downloadPath: "/x"}
	bus := events.NewBus(discardLogger())

	p := New(api, 1, bus, discardLogger())

	uploads := []UploadTask{{LocalPath: "/a"}, {LocalPath: "/b"}}
	downloads := []DownloadTask{{Entry: model.RemoteEntry{Name: "c"}}}

	require.NoError(t, p.RunAll(t.Context(), uploads, downloads))
	assert.Equal(t, int32(2), api.uploadCalls.Load())
	assert.Equal(t, int32(1), api.downloadCalls.Load())
}

func TestRunAllPropagatesFirstError(t *testing.T) {
	api := &fakeAPI{uploadErrs: []error{remoteapi.ErrBadRequest}}
	bus := events.NewBus(discardLogger())

	p := New(api, 2, bus, discardLogger())
	p.sleepFunc = noopSleep

	err := p.RunAll(t.Context(), []UploadTask{{LocalPath: "/a"}}, nil)
	require.Error(t, err)
}
