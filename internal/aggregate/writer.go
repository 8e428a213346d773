// Package aggregate stores tile fragments on disk while features stream in and
// merges them into one record per tile afterwards.
//
// Fragments are appended as JSON lines to one channel file per
// (category, tile). Only a bounded number of channel files are open at once;
// the least recently written one is flushed and closed when the bound is
// exceeded and transparently reopened for append on its next write.
package aggregate

import (
	"bufio"
	"bytes"
	"container/list"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beetlebugorg/shptiles/internal/tiling"
)

// DefaultMaxOpen is the default bound on simultaneously open channel files.
const DefaultMaxOpen = 128

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("aggregate: writer closed")

// Writer is an append-only fan-out of JSON lines into per-(category, tile)
// channel files under a single directory. It is safe for concurrent use.
//
// Example:
//
//	w, err := aggregate.NewWriter(filepath.Join(out, "_tmp_jsonl"), aggregate.DefaultMaxOpen)
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	err = w.Append("roads", tiling.Key{X: 3, Y: -1}, road)
type Writer struct {
	dir     string
	maxOpen int

	channels map[string]*channel
	lru      *list.List // most recently written at front
	mu       sync.Mutex

	closed    bool
	lines     int64
	evictions int64
	opened    int64
}

// channel is one open channel file.
type channel struct {
	name    string
	file    *os.File
	buf     *bufio.Writer
	element *list.Element
}

// Stats holds writer counters.
type Stats struct {
	Open      int   // channel files currently open
	Lines     int64 // lines appended
	Evictions int64 // channel files closed to respect the bound
	Opens     int64 // channel file opens, including reopens after eviction
}

// NewWriter creates dir if needed and returns a writer keeping at most maxOpen
// channel files open. maxOpen <= 0 selects DefaultMaxOpen.
func NewWriter(dir string, maxOpen int) (*Writer, error) {
	if maxOpen <= 0 {
		maxOpen = DefaultMaxOpen
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create fragment directory: %w", err)
	}
	return &Writer{
		dir:      dir,
		maxOpen:  maxOpen,
		channels: make(map[string]*channel),
		lru:      list.New(),
	}, nil
}

// Dir returns the directory holding the channel files.
func (w *Writer) Dir() string {
	return w.dir
}

// ChannelName returns the file name of the channel for category and tile k.
func ChannelName(category string, k tiling.Key) string {
	return fmt.Sprintf("%s_%d_%d.jsonl", category, k.X, k.Y)
}

// Append encodes v as one JSON line on the channel for category and tile k.
func (w *Writer) Append(category string, k tiling.Key, v any) error {
	var line bytes.Buffer
	enc := json.NewEncoder(&line)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s fragment: %w", category, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	ch, err := w.channel(ChannelName(category, k))
	if err != nil {
		return err
	}
	if _, err := ch.buf.Write(line.Bytes()); err != nil {
		return fmt.Errorf("append to %s: %w", ch.name, err)
	}
	w.lines++

	for w.lru.Len() > w.maxOpen {
		if err := w.evictLRU(); err != nil {
			return err
		}
	}
	return nil
}

// channel returns the open channel for name, opening it if needed, and marks
// it most recently used. Must be called with w.mu locked.
func (w *Writer) channel(name string) (*channel, error) {
	if ch, ok := w.channels[name]; ok {
		w.lru.MoveToFront(ch.element)
		return ch, nil
	}

	f, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open channel %s: %w", name, err)
	}
	ch := &channel{name: name, file: f, buf: bufio.NewWriter(f)}
	ch.element = w.lru.PushFront(ch)
	w.channels[name] = ch
	w.opened++
	return ch, nil
}

// evictLRU flushes and closes the least recently written channel.
// Must be called with w.mu locked.
func (w *Writer) evictLRU() error {
	elem := w.lru.Back()
	if elem == nil {
		return nil
	}

	ch := elem.Value.(*channel)
	w.lru.Remove(elem)
	delete(w.channels, ch.name)
	w.evictions++
	return ch.close()
}

func (c *channel) close() error {
	if err := c.buf.Flush(); err != nil {
		c.file.Close()
		return fmt.Errorf("flush channel %s: %w", c.name, err)
	}
	if err := c.file.Close(); err != nil {
		return fmt.Errorf("close channel %s: %w", c.name, err)
	}
	return nil
}

// Close flushes and closes every open channel. It is safe to call more than once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for e := w.lru.Front(); e != nil; e = e.Next() {
		if err := e.Value.(*channel).close(); err != nil {
			errs = append(errs, err)
		}
	}
	w.channels = make(map[string]*channel)
	w.lru.Init()
	return errors.Join(errs...)
}

// Stats returns writer counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return Stats{
		Open:      w.lru.Len(),
		Lines:     w.lines,
		Evictions: w.evictions,
		Opens:     w.opened,
	}
}
