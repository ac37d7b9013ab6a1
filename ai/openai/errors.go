package openai

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/poiesic/shelfmark/core"
)

// classify tags client failures with the shared taxonomy. Timeouts and
// transport errors are transient; anything else is returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", core.ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", core.ErrTransient, err)
	}
	return err
}

// tokenOrNone returns "none" for an empty token. Local OpenAI-compatible
// services accept any value but langchaingo requires one.
func tokenOrNone(token string) string {
	if token == "" {
		return "none"
	}
	return token
}
