package engine

import (
	"context"
	"io"
	"sync"

	engerrors "github.com/marmos91/resolvd/pkg/engine/errors"
)

func unknownKind(kind ExportKind) error {
	return engerrors.NewBadInput("unknown export kind %q", kind)
}

// ParseExportKind validates a user-supplied kind.
func ParseExportKind(s string) (ExportKind, error) {
	switch ExportKind(s) {
	case ExportCSV, ExportJSON:
		return ExportKind(s), nil
	default:
		return "", unknownKind(ExportKind(s))
	}
}

// item is one element pushed by a producer: either a line or a terminal error.
type item struct {
	line string
	err  error
}

// ChanIterator adapts a push-style producer into an Iterator. The producer
// runs in its own goroutine and feeds a bounded channel; Next blocks until a
// line, the end of the stream, or a failure is available.
type ChanIterator struct {
	items  chan item
	parent context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
	finished  bool
	err       error
}

// Emit pushes one line to the consumer. It returns false once the consumer
// has closed the iterator; the producer should then stop.
type Emit func(line string) bool

// NewChanIterator starts produce in a background goroutine. A nil error from
// produce ends the sequence with io.EOF; any other error is returned by the
// Next call that follows the last line. Cancelling parent aborts the producer
// and the consumer sees a NotInitialized error instead of a truncated EOF.
func NewChanIterator(parent context.Context, buffer int, produce func(ctx context.Context, emit Emit) error) *ChanIterator {
	if buffer < 0 {
		buffer = 0
	}
	ctx, cancel := context.WithCancel(parent)
	it := &ChanIterator{
		items:  make(chan item, buffer),
		parent: parent,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(it.done)
		defer close(it.items)

		emit := func(line string) bool {
			select {
			case it.items <- item{line: line}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if err := produce(ctx, emit); err != nil && ctx.Err() == nil {
			select {
			case it.items <- item{err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return it
}

// Next returns the next line, io.EOF at the end, or the producer's failure.
func (it *ChanIterator) Next(ctx context.Context) (string, error) {
	if it.finished {
		return "", it.err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case itm, ok := <-it.items:
		if !ok {
			it.finished, it.err = true, io.EOF
			if it.parent.Err() != nil {
				it.err = engerrors.NewNotInitialized(context.Cause(it.parent), "export aborted")
			}
			return "", it.err
		}
		if itm.err != nil {
			it.finished, it.err = true, itm.err
			return "", itm.err
		}
		return itm.line, nil
	}
}

// Close stops the producer and waits for it to exit.
func (it *ChanIterator) Close() error {
	it.closeOnce.Do(func() {
		it.cancel()
		<-it.done
	})
	return nil
}

// SliceIterator iterates over a fixed set of lines.
type SliceIterator struct {
	lines  []string
	pos    int
	closed bool
}

// NewSliceIterator returns an Iterator over lines.
func NewSliceIterator(lines ...string) *SliceIterator {
	return &SliceIterator{lines: lines}
}

// Next returns the next line or io.EOF.
func (it *SliceIterator) Next(_ context.Context) (string, error) {
	if it.closed || it.pos >= len(it.lines) {
		return "", io.EOF
	}
	line := it.lines[it.pos]
	it.pos++
	return line, nil
}

// Close marks the iterator exhausted.
func (it *SliceIterator) Close() error {
	it.closed = true
	return nil
}

// Closed reports whether Close was called.
func (it *SliceIterator) Closed() bool {
	return it.closed
}
