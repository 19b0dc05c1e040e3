// Package events is the bounded-channel observer bus the core uses to
// report progress, completion, errors, and filesystem changes to the
// UI/CLI layer. Publishing never blocks the emitting goroutine: each
// subscriber reads from its own buffered channel, and when that channel
// is full the new event is dropped for that subscriber, mirroring the
// teacher's trySend pattern.
package events

import "time"

// Stage identifies which part of the pipeline a progress event comes
// from.
type Stage string

const (
	StageUpload   Stage = "upload"
	StageDownload Stage = "download"
	StageSnapshot Stage = "snapshot"
)

// ChangeKind identifies the nature of a filesystem-change notification.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeChanged ChangeKind = "changed"
	ChangeRemoved ChangeKind = "removed"
	ChangeRenamed ChangeKind = "renamed"
)

// Event is the sum of everything the core can report to a subscriber.
// Exactly one of the embedded payload pointers is non-nil.
type Event struct {
	At time.Time

	Progress   *ProgressEvent
	Completion *CompletionEvent
	Error      *ErrorEvent
	Change     *ChangeEvent
}

// ProgressEvent reports in-flight transfer progress, emitted at 1 MiB
// granularity (§4.7) to avoid overwhelming observers.
type ProgressEvent struct {
	Stage            Stage
	TaskID           string
	CurrentPath      string
	BytesTransferred int64
	BytesTotal       int64
	RateBytesPerSec  float64
}

// CompletionEvent reports a finished task.
type CompletionEvent struct {
	Stage       Stage
	TaskID      string
	CurrentPath string
}

// ErrorEvent reports a task failure with a user-oriented message.
type ErrorEvent struct {
	Stage       Stage
	TaskID      string
	CurrentPath string
	Message     string
}

// ChangeEvent reports a filesystem change detected locally or applied by
// the pipeline.
type ChangeEvent struct {
	Kind    ChangeKind
	Path    string
	OldPath string // set only for ChangeRenamed
}
