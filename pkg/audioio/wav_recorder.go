package audioio

import (
	"bytes"
	"io"
	"sync"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// WavRecorder is an OutputDevice that keeps everything played and can save it as one wav file.
type WavRecorder struct {
	sampleRate  int
	numChannels int

	mutex sync.Mutex
	pcm   bytes.Buffer
}

func NewWavRecorder(sampleRate int, numChannels int) *WavRecorder {
	return &WavRecorder{sampleRate: sampleRate, numChannels: numChannels}
}

func (w *WavRecorder) SampleRate() int  { return w.sampleRate }
func (w *WavRecorder) NumChannels() int { return w.numChannels }

// Play consumes audioOutput right away, the returned WaitGroup is already done.
func (w *WavRecorder) Play(audioOutput io.Reader) (*sync.WaitGroup, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if _, err := w.pcm.ReadFrom(audioOutput); err != nil {
		return nil, errors.Wrap(err, "cannot record audio")
	}
	return &sync.WaitGroup{}, nil
}

func (w *WavRecorder) Stop() error { return nil }

func (w *WavRecorder) Duration() time.Duration {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	bytesPerSecond := 2 * w.numChannels * w.sampleRate
	return time.Duration(w.pcm.Len()) * time.Second / time.Duration(bytesPerSecond)
}

// Save writes the recording to path on fs.
func (w *WavRecorder) Save(fs afero.Fs, path string) error {
	w.mutex.Lock()
	pcm := audio_utils.PCMBufferFromBytes(w.pcm.Bytes(), w.sampleRate, w.numChannels)
	w.mutex.Unlock()

	wavBytes, err := audio_utils.EncodeWav(pcm)
	if err != nil {
		return err
	}
	if err := afero.WriteFile(fs, path, wavBytes, 0644); err != nil {
		return errors.Wrapf(err, "cannot write %s", path)
	}
	log.Info().Str("path", path).Int("byte_size", len(wavBytes)).Msg("recording saved")
	return nil
}
