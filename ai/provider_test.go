package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestComposeClose(t *testing.T) {
	var order []string
	boom := errors.New("boom")

	p := Compose(nil, nil,
		closerFunc(func() error { order = append(order, "first"); return boom }),
		nil,
		closerFunc(func() error { order = append(order, "second"); return nil }),
	)

	err := p.Close()
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Nil(t, p.Embedder())
	assert.Nil(t, p.PreviewGenerator())
}
