package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type closable struct {
	Engine
	closed bool
}

func (c *closable) Close() error {
	c.closed = true
	return nil
}

func TestReadOnly_HidesClose(t *testing.T) {
	t.Parallel()

	var h Handle = &closable{}
	facade := ReadOnly(h)

	_, isHandle := facade.(Handle)
	assert.False(t, isHandle)
	_, isCloser := facade.(interface{ Close() error })
	assert.False(t, isCloser)

	assert.Equal(t, facade, ReadOnly(facade), "wrapping twice is a no-op")
}
