package audio_utils

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Format string

const (
	FormatMp3  Format = "mp3"
	FormatWav  Format = "wav"
	FormatFlac Format = "flac"
	// FormatPcm is headerless signed 16-bit little-endian audio, the caller has to know rate and channels.
	FormatPcm Format = "pcm"
)

// PCMBuffer holds decoded signed 16-bit samples, interleaved per channel.
type PCMBuffer struct {
	Samples     []int16
	SampleRate  int
	NumChannels int
}

func (b *PCMBuffer) SamplesPerChannel() int {
	if b.NumChannels == 0 {
		return 0
	}
	return len(b.Samples) / b.NumChannels
}

// Bytes serializes the samples as S16LE.
func (b *PCMBuffer) Bytes() []byte {
	out := make([]byte, 2*len(b.Samples))
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// Hint describes headerless audio, only FormatPcm looks at it.
type Hint struct {
	SampleRate  int
	NumChannels int
}

// Decode reads the whole encoded payload and returns it as 16-bit PCM.
func Decode(format Format, input io.Reader, hint Hint) (*PCMBuffer, error) {
	switch format {
	case FormatMp3:
		return decodeMp3(input)
	case FormatWav:
		return decodeWav(input)
	case FormatFlac:
		return decodeFlac(input)
	case FormatPcm:
		return decodePcm(input, hint)
	default:
		return nil, errors.Errorf("unsupported audio format %q", format)
	}
}

// go-mp3 always produces two channels of S16LE regardless of the source.
func decodeMp3(input io.Reader) (*PCMBuffer, error) {
	decoder, err := mp3.NewDecoder(input)
	if err != nil {
		return nil, errors.Wrap(err, "mp3.NewDecoder failed")
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read decoded mp3")
	}
	log.Debug().Int("sample_rate", decoder.SampleRate()).Int("pcm_byte_size", len(raw)).Msg("mp3 decoded")
	return &PCMBuffer{
		Samples:     twoByteDataToInt16Slice(raw),
		SampleRate:  decoder.SampleRate(),
		NumChannels: 2,
	}, nil
}

func decodeWav(input io.Reader) (*PCMBuffer, error) {
	// wav.Decoder needs to seek around the RIFF chunks.
	rs, ok := input.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(input)
		if err != nil {
			return nil, errors.Wrap(err, "cannot read wav payload")
		}
		rs = bytes.NewReader(data)
	}

	decoder := wav.NewDecoder(rs)
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid wav payload")
	}
	if decoder.WavAudioFormat != 1 {
		return nil, errors.Errorf("unsupported wav audio format %d", decoder.WavAudioFormat)
	}
	intBuffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrap(err, "cannot decode wav pcm")
	}

	samples := make([]int16, len(intBuffer.Data))
	for i, v := range intBuffer.Data {
		samples[i] = scaleToInt16(v, int(decoder.BitDepth))
	}
	return &PCMBuffer{
		Samples:     samples,
		SampleRate:  int(decoder.SampleRate),
		NumChannels: int(decoder.NumChans),
	}, nil
}

func decodeFlac(input io.Reader) (*PCMBuffer, error) {
	stream, err := flac.New(input)
	if err != nil {
		return nil, errors.Wrap(err, "flac.New failed")
	}
	defer func() { dbg(stream.Close()) }()

	bitDepth := int(stream.Info.BitsPerSample)
	numChannels := int(stream.Info.NChannels)
	var samples []int16
	for {
		f, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "cannot parse flac frame")
		}
		for i := 0; i < int(f.BlockSize); i++ {
			for _, subframe := range f.Subframes {
				samples = append(samples, shiftToInt16(int(subframe.Samples[i]), bitDepth))
			}
		}
	}
	return &PCMBuffer{
		Samples:     samples,
		SampleRate:  int(stream.Info.SampleRate),
		NumChannels: numChannels,
	}, nil
}

func decodePcm(input io.Reader, hint Hint) (*PCMBuffer, error) {
	if hint.SampleRate <= 0 || hint.NumChannels <= 0 {
		return nil, errors.Errorf("pcm needs a sample rate and channel count, got %+v", hint)
	}
	raw, err := io.ReadAll(input)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read pcm payload")
	}
	return PCMBufferFromBytes(raw, hint.SampleRate, hint.NumChannels), nil
}

// PCMBufferFromBytes wraps raw S16LE bytes, a trailing odd byte is dropped.
func PCMBufferFromBytes(data []byte, sampleRate int, numChannels int) *PCMBuffer {
	return &PCMBuffer{
		Samples:     twoByteDataToInt16Slice(data),
		SampleRate:  sampleRate,
		NumChannels: numChannels,
	}
}

// scaleToInt16 follows the wav convention where 8-bit samples are unsigned.
func scaleToInt16(value int, bitDepth int) int16 {
	if bitDepth == 8 {
		return int16((value - 128) << 8)
	}
	return shiftToInt16(value, bitDepth)
}

func shiftToInt16(value int, bitDepth int) int16 {
	switch {
	case bitDepth > 16:
		return int16(value >> (bitDepth - 16))
	case bitDepth < 16 && bitDepth > 0:
		return int16(value << (16 - bitDepth))
	default:
		return int16(value)
	}
}
