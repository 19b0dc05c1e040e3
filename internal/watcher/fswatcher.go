// Package watcher translates raw filesystem events into the logical
// Created/Modified/Deleted/Renamed handlers the rest of the sync engine
// consumes, after passing each event through the filter chain described
// in §4.6: noise names, excluded directories, debounce, echo
// suppression, workspace drift, and a per-path in-progress guard.
package watcher

import "github.com/fsnotify/fsnotify"

// FsWatcher abstracts filesystem event monitoring so tests can inject a
// fake instead of touching the real OS event queue. Satisfied by
// *fsnotify.Watcher via fsnotifyWrapper.
type FsWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWrapper adapts *fsnotify.Watcher to FsWatcher. fsnotify
// exposes Events and Errors as public struct fields, not methods, so the
// interface needs an adapter.
type fsnotifyWrapper struct {
	w *fsnotify.Watcher
}

func newFsnotifyWatcher() (FsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsnotifyWrapper{w: w}, nil
}

func (fw *fsnotifyWrapper) Add(name string) error         { return fw.w.Add(name) }
func (fw *fsnotifyWrapper) Remove(name string) error      { return fw.w.Remove(name) }
func (fw *fsnotifyWrapper) Close() error                  { return fw.w.Close() }
func (fw *fsnotifyWrapper) Events() <-chan fsnotify.Event { return fw.w.Events }
func (fw *fsnotifyWrapper) Errors() <-chan error          { return fw.w.Errors }
