package synthesizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	RimeDefaultAPIURL = "https://users.rime.ai/v1/rime-tts"
	RimeModelMist     = "mist"
	RimeModelV1       = "v1"

	rimeNumChannels = 1
	// maxErrorBodySize caps how much of a failed response we keep around.
	maxErrorBodySize = 2048
)

type RimeOptions struct {
	// APIKey falls back to the RIME_API_KEY environment variable.
	APIKey                   string
	Model                    string
	Speaker                  string
	SampleRate               int
	SpeedAlpha               float64
	ReduceLatency            bool
	PauseBetweenBrackets     bool
	PhonemizeBetweenBrackets bool

	APIURL     string
	HTTPClient *http.Client
}

func (o RimeOptions) withDefaults() RimeOptions {
	if o.APIKey == "" {
		o.APIKey = os.Getenv("RIME_API_KEY")
	}
	if o.Model == "" {
		o.Model = RimeModelMist
	}
	if o.Speaker == "" {
		o.Speaker = "lagoon"
	}
	if o.SampleRate == 0 {
		o.SampleRate = 22050
	}
	if o.SpeedAlpha == 0 {
		o.SpeedAlpha = 1.0
	}
	if o.APIURL == "" {
		o.APIURL = RimeDefaultAPIURL
	}
	if o.HTTPClient == nil {
		o.HTTPClient = httpClient
	}
	return o
}

// RimePayload is the JSON body of the rime-tts endpoint.
type RimePayload struct {
	Speaker                  string  `json:"speaker"`
	Text                     string  `json:"text"`
	ModelID                  string  `json:"modelId"`
	SamplingRate             int     `json:"samplingRate"`
	SpeedAlpha               float64 `json:"speedAlpha"`
	ReduceLatency            bool    `json:"reduceLatency"`
	PauseBetweenBrackets     bool    `json:"pauseBetweenBrackets"`
	PhonemizeBetweenBrackets bool    `json:"phonemizeBetweenBrackets"`
}

type RimeTTS struct {
	mutex sync.Mutex
	opts  RimeOptions
}

func NewRimeTTS(opts RimeOptions) (*RimeTTS, error) {
	opts = opts.withDefaults()
	if opts.APIKey == "" {
		return nil, errors.New("rime API key is required, either as argument or set RIME_API_KEY environmental variable")
	}
	if opts.SampleRate < 0 {
		return nil, errors.Errorf("invalid sample rate %d", opts.SampleRate)
	}
	return &RimeTTS{opts: opts}, nil
}

func (r *RimeTTS) Capabilities() Capabilities { return Capabilities{Streaming: false} }
func (r *RimeTTS) NumChannels() int           { return rimeNumChannels }

func (r *RimeTTS) SampleRate() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.opts.SampleRate
}

// UpdateOptions changes model and speaker, empty values keep the current setting.
func (r *RimeTTS) UpdateOptions(model string, speaker string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if model != "" {
		r.opts.Model = model
	}
	if speaker != "" {
		r.opts.Speaker = speaker
	}
}

func (r *RimeTTS) Synthesize(ctx context.Context, text string, connOptions ConnOptions) (*ChunkedStream, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	r.mutex.Lock()
	opts := r.opts
	r.mutex.Unlock()

	run := func(ctx context.Context, emitter *Emitter) error {
		body, err := opts.sendRequest(ctx, opts.buildPayload(text))
		if err != nil {
			return err
		}
		hint := audio_utils.Hint{SampleRate: opts.SampleRate, NumChannels: rimeNumChannels}
		return pushDecoded(emitter, audio_utils.FormatMp3, bytes.NewReader(body), hint, opts.SampleRate, rimeNumChannels)
	}
	return newChunkedStream(ctx, "rime_tts", text, connOptions, run), nil
}

func (r *RimeTTS) Close() error { return nil }

func (o RimeOptions) buildPayload(text string) RimePayload {
	return RimePayload{
		Speaker:                  o.Speaker,
		Text:                     text,
		ModelID:                  o.Model,
		SamplingRate:             o.SampleRate,
		SpeedAlpha:               o.SpeedAlpha,
		ReduceLatency:            o.ReduceLatency,
		PauseBetweenBrackets:     o.PauseBetweenBrackets,
		PhonemizeBetweenBrackets: o.PhonemizeBetweenBrackets,
	}
}

// sendRequest returns the raw mp3 bytes, any non-audio answer becomes an APIStatusError.
func (o RimeOptions) sendRequest(ctx context.Context, payload RimePayload) ([]byte, error) {
	requestStart := time.Now()
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal rime payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.APIURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create rime request")
	}
	req.Header.Set("accept", "audio/mp3")
	req.Header.Set("Authorization", "Bearer "+o.APIKey)
	req.Header.Set("content-type", "application/json")

	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { dbg(resp.Body.Close()) }()

	contentType := resp.Header.Get("Content-Type")
	log.Debug().Dur("request_time", time.Since(requestStart)).Int("status_code", resp.StatusCode).Str("content_type", contentType).Str("speaker", payload.Speaker).Msg("rime request done")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !strings.HasPrefix(contentType, "audio") {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		log.Error().Int("status_code", resp.StatusCode).Str("content_type", contentType).Str("body", string(errBody)).Msg("rime returned non-audio data")
		return nil, NewAPIStatusError("rime returned non-audio data", resp.StatusCode, resp.Header.Get("X-Request-Id"), string(errBody), nil)
	}

	readStart := time.Now()
	result, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "could not read rime response")
	}
	log.Debug().Dur("response_body_read_time", time.Since(readStart)).Int("response_byte_size", len(result)).Msg("rime response read done")
	return result, nil
}
