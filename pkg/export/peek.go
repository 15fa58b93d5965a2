package export

import (
	"context"
	"errors"
	"io"

	"github.com/marmos91/resolvd/pkg/engine"
)

// peekIterator buffers at most one line so a session can check for data (or
// for a start-up failure) before handing out a handle.
type peekIterator struct {
	it engine.Iterator

	peeked bool
	line   string
	err    error
}

func newPeekIterator(it engine.Iterator) *peekIterator {
	return &peekIterator{it: it}
}

// prefetch pulls one element ahead. It reports whether a line is available; an
// exhausted sequence is not an error.
func (p *peekIterator) prefetch(ctx context.Context) (bool, error) {
	if !p.peeked {
		p.line, p.err = p.it.Next(ctx)
		p.peeked = true
	}
	if errors.Is(p.err, io.EOF) {
		return false, nil
	}
	if p.err != nil {
		return false, p.err
	}
	return true, nil
}

// Next returns the buffered element first, then continues the sequence.
func (p *peekIterator) Next(ctx context.Context) (string, error) {
	if p.peeked {
		line, err := p.line, p.err
		if err == nil || !errors.Is(err, io.EOF) {
			p.peeked, p.line, p.err = false, "", nil
		}
		return line, err
	}
	return p.it.Next(ctx)
}

func (p *peekIterator) Close() error {
	return p.it.Close()
}
