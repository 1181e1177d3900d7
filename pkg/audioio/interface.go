package audioio

import (
	"io"
	"sync"
)

// OutputDevice plays signed 16-bit little-endian PCM in the format it reports.
type OutputDevice interface {
	SampleRate() int
	NumChannels() int
	Play(audioOutput io.Reader) (*sync.WaitGroup, error)
	Stop() error
}
