package synthesizer

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/rs/zerolog/log"
)

// runFunc performs one vendor round trip and pushes the decoded frames into the emitter.
type runFunc func(ctx context.Context, emitter *Emitter) error

// ChunkedStream is the result of a single non-incremental synthesis call.
// Read Frames until it is closed, then check Err.
type ChunkedStream struct {
	inputText string
	requestID string

	frames chan models.SynthesizedAudio
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func newChunkedStream(ctx context.Context, processor string, inputText string, connOptions ConnOptions, run runFunc, mappers ...ErrorMapper) *ChunkedStream {
	connOptions = connOptions.withDefaults()
	streamCtx, cancel := context.WithCancel(ctx)
	s := &ChunkedStream{
		inputText: inputText,
		requestID: uuid.NewString(),
		frames:    make(chan models.SynthesizedAudio, 16),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
	go s.run(streamCtx, processor, connOptions, run, mappers)
	return s
}

func (s *ChunkedStream) run(ctx context.Context, processor string, connOptions ConnOptions, run runFunc, mappers []ErrorMapper) {
	defer close(s.done)
	defer close(s.frames)
	defer s.cancel()

	startTime := time.Now()
	// The deadline only covers the vendor call, a slow reader of Frames is not a timeout.
	runCtx, runCancel := context.WithTimeout(ctx, connOptions.Timeout)
	defer runCancel()

	emitter := newEmitter(ctx, s.frames, s.requestID, processor)
	err := run(runCtx, emitter)
	if err == nil {
		err = emitter.Flush()
	}
	if err != nil {
		s.err = MapError(err, append([]ErrorMapper{MapDeadline}, mappers...)...)
		log.Error().Err(s.err).Str("request_id", s.requestID).Str("processor", processor).Str("kind", KindOf(s.err).String()).Dur("elapsed", time.Since(startTime)).Msg("synthesis failed")
		return
	}
	log.Debug().Str("request_id", s.requestID).Str("processor", processor).Int("frames", emitter.count).Dur("elapsed", time.Since(startTime)).Msg("synthesis done")
}

func (s *ChunkedStream) InputText() string { return s.inputText }
func (s *ChunkedStream) RequestID() string { return s.requestID }

// Frames is closed once the request has finished, successfully or not.
func (s *ChunkedStream) Frames() <-chan models.SynthesizedAudio {
	return s.frames
}

// Err waits for the request to finish and returns its error.
// Frames not read yet are discarded.
func (s *ChunkedStream) Err() error {
	for range s.frames {
	}
	<-s.done
	return s.err
}

// Collect drains the stream.
func (s *ChunkedStream) Collect() ([]models.SynthesizedAudio, error) {
	var result []models.SynthesizedAudio
	for audio := range s.frames {
		result = append(result, audio)
	}
	return result, s.Err()
}

// Close aborts the request if still running and releases the goroutine.
func (s *ChunkedStream) Close() error {
	s.cancel()
	for range s.frames {
	}
	<-s.done
	return nil
}

// Emitter stamps frames with their request and holds the latest one back so it can be marked final.
type Emitter struct {
	ctx       context.Context
	out       chan<- models.SynthesizedAudio
	requestID string
	segmentID string
	processor string

	pending *models.SynthesizedAudio
	count   int
}

func newEmitter(ctx context.Context, out chan<- models.SynthesizedAudio, requestID string, processor string) *Emitter {
	return &Emitter{
		ctx:       ctx,
		out:       out,
		requestID: requestID,
		segmentID: requestID,
		processor: processor,
	}
}

func (e *Emitter) Push(frame models.AudioFrame) error {
	if e.pending != nil {
		if err := e.send(*e.pending); err != nil {
			return err
		}
	}
	trace := models.NewTrace(e.processor)
	e.pending = &models.SynthesizedAudio{
		RequestID: e.requestID,
		SegmentID: e.segmentID,
		Frame:     frame,
		Trace:     trace,
	}
	return nil
}

// Flush sends the held back frame marked as final.
func (e *Emitter) Flush() error {
	if e.pending == nil {
		return nil
	}
	e.pending.IsFinal = true
	err := e.send(*e.pending)
	e.pending = nil
	return err
}

func (e *Emitter) send(audio models.SynthesizedAudio) error {
	audio.Trace.ProcessedAt = time.Now()
	audio.Trace.Processor = e.processor
	select {
	case e.out <- audio:
		e.count++
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// pushDecoded decodes a whole vendor payload, converts it to the advertised format and emits it frame by frame.
func pushDecoded(emitter *Emitter, format audio_utils.Format, payload io.Reader, hint audio_utils.Hint, sampleRate int, numChannels int) error {
	decoded, err := audio_utils.Decode(format, payload, hint)
	if err != nil {
		return err
	}
	converted, err := audio_utils.Convert(decoded, sampleRate, numChannels)
	if err != nil {
		return err
	}
	for _, frame := range audio_utils.SplitFrames(converted, audio_utils.DefaultSamplesPerChannel(sampleRate)) {
		if err := emitter.Push(frame); err != nil {
			return err
		}
	}
	return nil
}
