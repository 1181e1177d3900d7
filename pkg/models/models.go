package models

import (
	"time"

	"github.com/rs/zerolog/log"
)

type Trace struct {
	CreatedAt time.Time
	Creator   string

	ReceivedAt time.Time

	ProcessedAt time.Time
	Processor   string
}

func (t Trace) Log() {
	log.Trace().Time("created_at", t.CreatedAt).Str("creator", t.Creator).Time("processed_at", t.ProcessedAt).Str("processor", t.Processor).Dur("dur_to_process", t.ProcessedAt.Sub(t.CreatedAt)).Msgf("tracing")
}

func NewTrace(creator string) Trace {
	return Trace{
		CreatedAt: time.Now(),
		Creator:   creator,
	}
}

// AudioFrame is a fixed-format unit of decoded audio.
// Data holds signed 16-bit little-endian samples, interleaved per channel.
type AudioFrame struct {
	Data              []byte
	SampleRate        int
	NumChannels       int
	SamplesPerChannel int
}

func NewAudioFrame(data []byte, sampleRate int, numChannels int) AudioFrame {
	samplesPerChannel := 0
	if numChannels > 0 {
		samplesPerChannel = len(data) / (2 * numChannels)
	}
	return AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		NumChannels:       numChannels,
		SamplesPerChannel: samplesPerChannel,
	}
}

func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate == 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// SynthesizedAudio is a single frame emitted by a synthesizer for a given request.
type SynthesizedAudio struct {
	RequestID string
	SegmentID string
	Frame     AudioFrame
	// IsFinal marks the last frame of the request.
	IsFinal bool
	Trace   Trace
}
