package ai

import (
	"errors"
	"io"
)

type composite struct {
	embedder  Embedder
	generator PreviewGenerator
	closers   []io.Closer
}

// Compose builds an AIProvider from independently constructed services,
// for setups where embeddings and generation come from different backends.
// Close closes each closer in order and joins their errors.
func Compose(embedder Embedder, generator PreviewGenerator, closers ...io.Closer) AIProvider {
	return &composite{embedder: embedder, generator: generator, closers: closers}
}

func (c *composite) Embedder() Embedder { return c.embedder }

func (c *composite) PreviewGenerator() PreviewGenerator { return c.generator }

func (c *composite) Close() error {
	var errs []error
	for _, closer := range c.closers {
		if closer == nil {
			continue
		}
		errs = append(errs, closer.Close())
	}
	return errors.Join(errs...)
}
