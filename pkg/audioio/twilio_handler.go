package audioio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"runtime/debug"
	"sync"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/petrzlen/vocode-plugins/pkg/synthesizer"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TwilioHandler speaks a greeting into a Twilio media stream once the call starts.
// It implements networking.WebsocketMessageHandler.
type TwilioHandler struct {
	tts         synthesizer.Synthesizer
	connOptions synthesizer.ConnOptions
	greeting    string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	readChan  chan []byte
	writeChan chan []byte

	// only touched from the reader routine
	streamSid string
	// caller audio, decoded
	inbound []int16
}

func NewTwilioHandler(ctx context.Context, tts synthesizer.Synthesizer, connOptions synthesizer.ConnOptions, greeting string) *TwilioHandler {
	ctx, cancel := context.WithCancel(ctx)
	result := &TwilioHandler{
		tts:         tts,
		connOptions: connOptions,
		greeting:    greeting,
		ctx:         ctx,
		cancel:      cancel,
		readChan:    make(chan []byte, 100),
		writeChan:   make(chan []byte, 100),
	}
	go result.readMessagesUntilChanClosed()
	return result
}

func (th *TwilioHandler) GetReader() chan<- []byte {
	return th.readChan
}

func (th *TwilioHandler) GetWriter() <-chan []byte {
	return th.writeChan
}

func (th *TwilioHandler) readMessagesUntilChanClosed() {
	for msg := range th.readChan {
		th.handleMessage(msg)
	}

	// The websocket is gone, abort whatever is still being spoken.
	th.cancel()
	th.wg.Wait()
	close(th.writeChan)
	inboundDuration := time.Duration(len(th.inbound)) * time.Second / TwilioSampleRate
	log.Info().Str("stream_sid", th.streamSid).Dur("inbound_duration", inboundDuration).Msg("twilio websocket finished")
}

func (th *TwilioHandler) handleMessage(msg []byte) {
	var message TwilioMessage
	err := json.Unmarshal(msg, &message)
	if err != nil {
		// Maybe I just wrongfully implemented, or they changed the API
		log.Error().Err(err).Msgf("couldn't decode message from websocket: %s", truncatePayload(string(msg)))
		return
	}

	log.Trace().Msgf("received message: %s", truncatePayload(string(msg)))

	switch message.Event {
	case TwilioEventConnected:
		log.Debug().Msg("twilio connected")
	case TwilioEventStart:
		th.handleStartMessage(message)
	case TwilioEventMedia:
		th.handleMediaMessage(message)
	case TwilioEventStop:
		log.Info().Str("stream_sid", th.streamSid).Msg("twilio stream stopped")
		th.cancel()
	case TwilioEventMark:
		if message.Mark != nil {
			log.Debug().Str("mark", message.Mark.Name).Msg("twilio played until mark")
		}
	default:
		log.Error().Err(errors.Errorf("unknown message.Event %s", message.Event)).Msg("")
	}
}

func (th *TwilioHandler) handleStartMessage(message TwilioMessage) {
	th.streamSid = message.StreamSid
	if th.streamSid == "" && message.Start != nil {
		th.streamSid = message.Start.StreamSid
	}
	if message.Start != nil {
		log.Info().Str("stream_sid", th.streamSid).Str("call_sid", message.Start.CallSid).Str("encoding", message.Start.MediaFormat.Encoding).Int("sample_rate", message.Start.MediaFormat.SampleRate).Msg("twilio stream started")
	}
	if th.greeting == "" {
		return
	}

	th.wg.Add(1)
	go func(streamSid string) {
		defer th.wg.Done()
		if err := th.speak(streamSid, th.greeting); err != nil {
			log.Error().Err(err).Str("kind", synthesizer.KindOf(err).String()).Str("stream_sid", streamSid).Msg("cannot speak greeting")
		}
	}(th.streamSid)
}

func (th *TwilioHandler) handleMediaMessage(message TwilioMessage) {
	if message.Media == nil {
		return
	}
	// https://en.wikipedia.org/wiki/%CE%9C-law_algorithm
	mulawAudioData, err := base64.StdEncoding.DecodeString(message.Media.Payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to decode base64 audio data")
		return
	}
	th.inbound = append(th.inbound, audio_utils.DecodeMulaw(mulawAudioData)...)
}

// speak synthesizes text and streams it as 8kHz mu-law media messages followed by a mark named after the request.
func (th *TwilioHandler) speak(streamSid string, text string) error {
	stream, err := th.tts.Synthesize(th.ctx, text, th.connOptions)
	if err != nil {
		return err
	}
	defer func() { dbg(stream.Close()) }()

	var utterance []models.AudioFrame
	for audio := range stream.Frames() {
		utterance = append(utterance, audio.Frame)
		if !audio.IsFinal {
			continue
		}
		chunks, err := utteranceToMulaw(utterance)
		if err != nil {
			return err
		}
		utterance = nil
		for _, chunk := range chunks {
			if err := th.send(TwilioMessage{
				Event:     TwilioEventMedia,
				StreamSid: streamSid,
				Media:     &TwilioMediaPayload{Payload: base64.StdEncoding.EncodeToString(chunk)},
			}); err != nil {
				return err
			}
		}
		if err := th.send(TwilioMessage{
			Event:     TwilioEventMark,
			StreamSid: streamSid,
			Mark:      &TwilioMarkPayload{Name: audio.RequestID},
		}); err != nil {
			return err
		}
	}
	return stream.Err()
}

func (th *TwilioHandler) send(message TwilioMessage) error {
	msg, err := json.Marshal(message)
	if err != nil {
		return errors.Wrap(err, "cannot marshal twilio message")
	}
	select {
	case th.writeChan <- msg:
		return nil
	case <-th.ctx.Done():
		return th.ctx.Err()
	}
}

// utteranceToMulaw resamples the whole utterance in one pass, so frame edges do not break the interpolation,
// and cuts it into 100ms mu-law chunks.
func utteranceToMulaw(frames []models.AudioFrame) ([][]byte, error) {
	phoneAudio, err := audio_utils.Convert(audio_utils.MergeFrames(frames), TwilioSampleRate, 1)
	if err != nil {
		return nil, err
	}
	chunkSize := audio_utils.DefaultSamplesPerChannel(TwilioSampleRate)
	var chunks [][]byte
	for start := 0; start < len(phoneAudio.Samples); start += chunkSize {
		end := min(start+chunkSize, len(phoneAudio.Samples))
		chunks = append(chunks, audio_utils.EncodeMulaw(phoneAudio.Samples[start:end]))
	}
	return chunks, nil
}

func errLog(err error, what string) {
	if err != nil {
		log.Error().Err(err).Msg(what)
		debug.PrintStack()
	}
}

func dbg(err error) {
	if err != nil {
		log.Debug().Err(err).Msg("sth non-essential failed")
	}
}
