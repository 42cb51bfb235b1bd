// Package fs reads directory entries. It offers two strategies behind the
// EntrySource interface: a bulk native scan and an item-by-item strategy
// backed by storage providers (local, sftp, s3, zip archives).
package fs

import (
	"context"
	"io"

	"github.com/justyntemme/razorlist/internal/model"
)

// EnumerationHandle is an open, cancelable stream of raw entries.
type EnumerationHandle interface {
	// NextBatch returns up to max entries. It returns io.EOF (possibly with
	// a final non-empty batch) once the directory is exhausted.
	NextBatch(ctx context.Context, max int) ([]model.RawEntry, error)
	Close() error
}

// EntrySource opens enumeration handles for directory paths.
type EntrySource interface {
	Open(ctx context.Context, path string) (EnumerationHandle, error)
}

// Strategy identifies which EntrySource produced a listing.
type Strategy int

const (
	StrategyNone Strategy = iota
	StrategyBulk
	StrategyItem
)

func (s Strategy) String() string {
	switch s {
	case StrategyBulk:
		return "bulk"
	case StrategyItem:
		return "item"
	default:
		return "none"
	}
}

// EntryStream is a pull iterator over the entries of a folder, in the
// manner of a scanner: call Next until it returns false, then check Err.
type EntryStream interface {
	Next(ctx context.Context) (model.RawEntry, bool)
	Err() error
	Close() error
}

// streamHandle adapts an EntryStream into an EnumerationHandle.
type streamHandle struct {
	stream EntryStream
	path   string
	done   bool
}

func newStreamHandle(path string, stream EntryStream) *streamHandle {
	return &streamHandle{stream: stream, path: path}
}

func (h *streamHandle) NextBatch(ctx context.Context, max int) ([]model.RawEntry, error) {
	if h.done {
		return nil, io.EOF
	}
	if max <= 0 {
		max = 1
	}
	batch := make([]model.RawEntry, 0, max)
	for len(batch) < max {
		if err := ctx.Err(); err != nil {
			return batch, NewError(Cancelled, h.path, err)
		}
		entry, ok := h.stream.Next(ctx)
		if !ok {
			h.done = true
			if err := h.stream.Err(); err != nil {
				return batch, MapError(h.path, err)
			}
			return batch, io.EOF
		}
		batch = append(batch, entry)
	}
	return batch, nil
}

func (h *streamHandle) Close() error {
	return h.stream.Close()
}

// sliceStream serves entries that a provider had to read in one go.
type sliceStream struct {
	entries []model.RawEntry
	index   int
	err     error
}

func (s *sliceStream) Next(ctx context.Context) (model.RawEntry, bool) {
	if err := ctx.Err(); err != nil {
		s.err = err
		return model.RawEntry{}, false
	}
	if s.index >= len(s.entries) {
		return model.RawEntry{}, false
	}
	e := s.entries[s.index]
	s.index++
	return e, true
}

func (s *sliceStream) Err() error   { return s.err }
func (s *sliceStream) Close() error { return nil }
