package synthesizer

import (
	"context"
	"time"
)

// DefaultTimeout bounds a single vendor round trip when the caller does not set one.
const DefaultTimeout = 10 * time.Second

type Capabilities struct {
	// Streaming is true when the vendor accepts text incrementally.
	Streaming bool
}

// ConnOptions are the per-call connection settings.
type ConnOptions struct {
	Timeout time.Duration
}

func (o ConnOptions) withDefaults() ConnOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Synthesizer turns text into a stream of fixed-format audio frames.
// Every vendor failure is reported as one of APITimeoutError, APIStatusError or APIConnectionError.
type Synthesizer interface {
	Capabilities() Capabilities
	SampleRate() int
	NumChannels() int
	Synthesize(ctx context.Context, text string, connOptions ConnOptions) (*ChunkedStream, error)
	Close() error
}
