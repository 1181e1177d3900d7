package audio_utils

import (
	"encoding/binary"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}

// pcmAudioFormat is the WAVE_FORMAT_PCM tag.
const pcmAudioFormat = 1

// EncodeWav wraps the 16-bit samples into a PCM wav container.
func EncodeWav(buf *PCMBuffer) (result []byte, err error) {
	if len(buf.Samples) == 0 {
		return nil, errors.New("nothing to encode, empty pcm buffer")
	}

	intData := make([]int, len(buf.Samples))
	for i, s := range buf.Samples {
		intData[i] = int(s)
	}
	inputBuffer := &audio.IntBuffer{
		Data: intData,
		Format: &audio.Format{
			SampleRate:  buf.SampleRate,
			NumChannels: buf.NumChannels,
		},
		SourceBitDepth: 16,
	}

	// Create an in-memory file to support io.WriteSeeker needed for NewEncoder which is needed for finalizing headers.
	fs := afero.NewMemMapFs()
	inMemoryFilename := "in-memory-output.wav"
	inMemoryFile, err := fs.Create(inMemoryFilename)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create in-memory wav file")
	}

	wavEncoder := wav.NewEncoder(inMemoryFile, buf.SampleRate, 16, buf.NumChannels, pcmAudioFormat)
	log.Debug().Int("int_data_length", len(intData)).Int("sample_rate", buf.SampleRate).Int("num_channels", buf.NumChannels).Msg("encoding pcm as a wav")
	if err = wavEncoder.Write(inputBuffer); err != nil {
		return nil, errors.Wrap(err, "cannot encode pcm as wav")
	}
	// Close the wavEncoder to flush any remaining data and finalize the WAV file
	if err = wavEncoder.Close(); err != nil {
		return nil, errors.Wrap(err, "cannot finish wav encoding")
	}

	// We close and re-open the file so we can properly read-all of its contents.
	dbg(inMemoryFile.Close())
	inMemoryFileReopen, err := fs.Open(inMemoryFilename)
	if err != nil {
		return nil, errors.Wrap(err, "cannot reopen in-memory wav file")
	}
	defer func() { dbg(inMemoryFileReopen.Close()) }()

	result, err = io.ReadAll(inMemoryFileReopen)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read in-memory wav file")
	}
	if len(result) == 0 {
		return nil, errors.New("wav output is empty when input was not")
	}
	return result, nil
}

func twoByteDataToInt16Slice(audioData []byte) []int16 {
	intData := make([]int16, len(audioData)/2)
	for i := 0; i+1 < len(audioData); i += 2 {
		intData[i/2] = int16(binary.LittleEndian.Uint16(audioData[i : i+2]))
	}
	return intData
}
