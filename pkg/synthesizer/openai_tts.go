package synthesizer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

var httpClient = &http.Client{}

const (
	// openAISampleRate - this I have measured by decodedMp3.SampleRate
	openAISampleRate  = 24000
	openAINumChannels = 1
)

var openAIVoices = map[string]bool{
	"alloy": true, "echo": true, "fable": true, "onyx": true, "nova": true, "shimmer": true,
}

var openAIModels = map[string]bool{
	string(openai.TTSModel1): true, string(openai.TTSModel1HD): true,
}

var openAIFormats = map[audio_utils.Format]bool{
	audio_utils.FormatMp3: true, audio_utils.FormatWav: true, audio_utils.FormatFlac: true, audio_utils.FormatPcm: true,
}

type OpenAIOptions struct {
	APIKey string
	// BaseURL overrides https://api.openai.com/v1, mostly for proxies and tests.
	BaseURL string
	Model   string
	Voice   string
	// ResponseFormat is one of mp3, wav, flac or pcm.
	ResponseFormat audio_utils.Format
	Speed          float64
}

func (o OpenAIOptions) withDefaults() OpenAIOptions {
	if o.Model == "" {
		o.Model = string(openai.TTSModel1)
	}
	if o.Voice == "" {
		o.Voice = string(openai.VoiceAlloy)
	}
	if o.ResponseFormat == "" {
		// TODO(ux, P1): Opus should be a better format for streaming once we can decode it.
		o.ResponseFormat = audio_utils.FormatMp3
	}
	if o.Speed == 0 {
		o.Speed = 1.0
	}
	return o
}

type OpenAITTS struct {
	mutex  sync.Mutex
	opts   OpenAIOptions
	client *openai.Client
}

func NewOpenAITTS(opts OpenAIOptions) (*OpenAITTS, error) {
	opts = opts.withDefaults()
	if opts.APIKey == "" {
		return nil, errors.New("openai API key is required")
	}
	if !openAIModels[opts.Model] {
		return nil, errors.Errorf("unknown openai speech model %q", opts.Model)
	}
	if !openAIVoices[opts.Voice] {
		return nil, errors.Errorf("unknown openai voice %q", opts.Voice)
	}
	if !openAIFormats[opts.ResponseFormat] {
		return nil, errors.Errorf("unsupported openai response format %q", opts.ResponseFormat)
	}
	if opts.Speed < 0.25 || opts.Speed > 4.0 {
		return nil, errors.Errorf("speed %.2f out of range [0.25, 4.0]", opts.Speed)
	}

	config := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		config.BaseURL = opts.BaseURL
	}
	config.HTTPClient = httpClient
	return &OpenAITTS{
		opts:   opts,
		client: openai.NewClientWithConfig(config),
	}, nil
}

func (o *OpenAITTS) Capabilities() Capabilities { return Capabilities{Streaming: false} }
func (o *OpenAITTS) SampleRate() int           { return openAISampleRate }
func (o *OpenAITTS) NumChannels() int          { return openAINumChannels }

// UpdateOptions sets a new voice and speed, zero values keep the current setting.
func (o *OpenAITTS) UpdateOptions(voice string, speed float64) error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	if voice != "" {
		if !openAIVoices[voice] {
			return errors.Errorf("unknown openai voice %q", voice)
		}
		o.opts.Voice = voice
	}
	if speed != 0 {
		o.opts.Speed = speed
	}
	return nil
}

func (o *OpenAITTS) Synthesize(ctx context.Context, text string, connOptions ConnOptions) (*ChunkedStream, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	o.mutex.Lock()
	opts := o.opts
	o.mutex.Unlock()

	run := func(ctx context.Context, emitter *Emitter) error {
		rawAudioBytes, err := o.createSpeech(ctx, opts.buildRequest(text))
		if err != nil {
			return err
		}
		hint := audio_utils.Hint{SampleRate: openAISampleRate, NumChannels: openAINumChannels}
		return pushDecoded(emitter, opts.ResponseFormat, bytes.NewReader(rawAudioBytes), hint, openAISampleRate, openAINumChannels)
	}
	return newChunkedStream(ctx, "openai_tts", text, connOptions, run, mapOpenAIError), nil
}

func (o *OpenAITTS) Close() error { return nil }

func (o OpenAIOptions) buildRequest(text string) openai.CreateSpeechRequest {
	return openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(o.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(o.Voice),
		ResponseFormat: openai.SpeechResponseFormat(o.ResponseFormat),
		Speed:          o.Speed,
	}
}

func (o *OpenAITTS) createSpeech(ctx context.Context, request openai.CreateSpeechRequest) ([]byte, error) {
	log.Debug().Str("input", request.Input).Float64("speed", request.Speed).Str("voice", string(request.Voice)).Msg("openai create speech start")
	requestStart := time.Now()

	response, err := o.client.CreateSpeech(ctx, request)
	if err != nil {
		return nil, err
	}
	defer func() { dbg(response.Close()) }()
	log.Debug().Dur("request_time", time.Since(requestStart)).Msg("openai create speech done")

	readStart := time.Now()
	result, err := io.ReadAll(response)
	if err != nil {
		return nil, errors.Wrap(err, "could not read openai speech response")
	}
	log.Debug().Dur("response_body_read_time", time.Since(readStart)).Int("response_byte_size", len(result)).Msg("openai speech body read done")
	return result, nil
}

func mapOpenAIError(err error) (error, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewAPIStatusError(apiErr.Message, apiErr.HTTPStatusCode, "", "", err), true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewAPIStatusError(reqErr.Error(), reqErr.HTTPStatusCode, "", "", err), true
	}
	return nil, false
}
