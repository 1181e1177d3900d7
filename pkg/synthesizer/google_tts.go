package synthesizer

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	GoogleGenderMale    = "male"
	GoogleGenderFemale  = "female"
	GoogleGenderNeutral = "neutral"

	googleDefaultLanguage   = "en-US"
	googleDefaultSampleRate = 24000
	googleNumChannels       = 1
)

// GoogleOptions configure the Cloud Text-to-Speech adapter, zero values fall back to the defaults.
type GoogleOptions struct {
	// Language is a BCP-47 code like "en-US".
	Language string
	// Gender is one of "male", "female" or "neutral", anything else is treated as neutral.
	Gender    string
	VoiceName string
	// SampleRate in Hz, 24000 by default.
	SampleRate int
	// Pitch in semitones, -20 to 20.
	Pitch            float64
	EffectsProfileID string
	// SpeakingRate from 0.25 to 4.0, 1.0 by default.
	SpeakingRate float64
	// Encoding is the wire format requested from Google, FormatWav (LINEAR16) or FormatMp3.
	Encoding audio_utils.Format

	CredentialsJSON []byte
	CredentialsFile string
}

func (o GoogleOptions) withDefaults() GoogleOptions {
	if o.Language == "" {
		o.Language = googleDefaultLanguage
	}
	if o.SampleRate == 0 {
		o.SampleRate = googleDefaultSampleRate
	}
	if o.SpeakingRate == 0 {
		o.SpeakingRate = 1.0
	}
	if o.Encoding == "" {
		o.Encoding = audio_utils.FormatWav
	}
	return o
}

func (o GoogleOptions) validate() error {
	if o.SampleRate < 0 {
		return errors.Errorf("invalid sample rate %d", o.SampleRate)
	}
	if o.Pitch < -20 || o.Pitch > 20 {
		return errors.Errorf("pitch %.2f out of range [-20, 20]", o.Pitch)
	}
	if o.SpeakingRate < 0.25 || o.SpeakingRate > 4.0 {
		return errors.Errorf("speaking rate %.2f out of range [0.25, 4.0]", o.SpeakingRate)
	}
	if _, err := googleAudioEncoding(o.Encoding); err != nil {
		return err
	}
	return nil
}

// GoogleVoiceUpdate mirrors the subset of options that can change after construction.
type GoogleVoiceUpdate struct {
	Language     string
	Gender       string
	VoiceName    string
	SpeakingRate float64
}

// googleSpeechClient is the slice of the SDK client we use.
type googleSpeechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error)
	Close() error
}

type googleSDKClient struct {
	client *texttospeech.Client
}

func (c googleSDKClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	return c.client.SynthesizeSpeech(ctx, req)
}

func (c googleSDKClient) Close() error {
	return c.client.Close()
}

type GoogleTTS struct {
	mutex  sync.Mutex
	opts   GoogleOptions
	client googleSpeechClient
}

func NewGoogleTTS(opts GoogleOptions) (*GoogleTTS, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid google tts options")
	}
	return &GoogleTTS{opts: opts}, nil
}

func (g *GoogleTTS) Capabilities() Capabilities { return Capabilities{Streaming: false} }
func (g *GoogleTTS) NumChannels() int           { return googleNumChannels }

func (g *GoogleTTS) SampleRate() int {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	return g.opts.SampleRate
}

// UpdateOptions replaces the voice selection and speaking rate, unset fields go back to their defaults.
func (g *GoogleTTS) UpdateOptions(update GoogleVoiceUpdate) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	opts := g.opts
	opts.Language = update.Language
	opts.Gender = update.Gender
	opts.VoiceName = update.VoiceName
	opts.SpeakingRate = update.SpeakingRate
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return errors.Wrap(err, "invalid google tts options")
	}
	g.opts = opts
	return nil
}

func (g *GoogleTTS) Synthesize(ctx context.Context, text string, connOptions ConnOptions) (*ChunkedStream, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	g.mutex.Lock()
	opts := g.opts
	g.mutex.Unlock()

	run := func(ctx context.Context, emitter *Emitter) error {
		client, err := g.ensureClient()
		if err != nil {
			return err
		}

		requestStart := time.Now()
		response, err := client.SynthesizeSpeech(ctx, opts.buildRequest(text))
		if err != nil {
			return err
		}
		log.Debug().Dur("request_time", time.Since(requestStart)).Int("response_byte_size", len(response.GetAudioContent())).Str("voice", opts.VoiceName).Str("language", opts.Language).Msg("google synthesize_speech done")

		hint := audio_utils.Hint{SampleRate: opts.SampleRate, NumChannels: googleNumChannels}
		return pushDecoded(emitter, opts.Encoding, bytes.NewReader(response.GetAudioContent()), hint, opts.SampleRate, googleNumChannels)
	}
	return newChunkedStream(ctx, "google_tts", text, connOptions, run, mapGoogleError), nil
}

func (g *GoogleTTS) Close() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.client == nil {
		return nil
	}
	err := g.client.Close()
	g.client = nil
	return err
}

// ensureClient lazily creates the long-lived SDK client shared by all requests.
func (g *GoogleTTS) ensureClient() (googleSpeechClient, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	if g.client != nil {
		return g.client, nil
	}

	var clientOptions []option.ClientOption
	switch {
	case len(g.opts.CredentialsJSON) > 0:
		clientOptions = append(clientOptions, option.WithCredentialsJSON(g.opts.CredentialsJSON))
	case g.opts.CredentialsFile != "":
		clientOptions = append(clientOptions, option.WithCredentialsFile(g.opts.CredentialsFile))
	}
	// The client outlives any single request.
	client, err := texttospeech.NewClient(context.Background(), clientOptions...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create google text-to-speech client")
	}
	g.client = googleSDKClient{client: client}
	return g.client, nil
}

func (o GoogleOptions) buildRequest(text string) *texttospeechpb.SynthesizeSpeechRequest {
	// validate already rejected unknown encodings
	encoding, _ := googleAudioEncoding(o.Encoding)
	var effectsProfileID []string
	if o.EffectsProfileID != "" {
		effectsProfileID = []string{o.EffectsProfileID}
	}
	return &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: o.Language,
			Name:         o.VoiceName,
			SsmlGender:   googleGender(o.Gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:    encoding,
			SampleRateHertz:  int32(o.SampleRate),
			Pitch:            o.Pitch,
			SpeakingRate:     o.SpeakingRate,
			EffectsProfileId: effectsProfileID,
		},
	}
}

func googleGender(gender string) texttospeechpb.SsmlVoiceGender {
	switch gender {
	case GoogleGenderMale:
		return texttospeechpb.SsmlVoiceGender_MALE
	case GoogleGenderFemale:
		return texttospeechpb.SsmlVoiceGender_FEMALE
	default:
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	}
}

func googleAudioEncoding(format audio_utils.Format) (texttospeechpb.AudioEncoding, error) {
	switch format {
	case audio_utils.FormatWav:
		// LINEAR16 responses carry a wav header.
		return texttospeechpb.AudioEncoding_LINEAR16, nil
	case audio_utils.FormatMp3:
		return texttospeechpb.AudioEncoding_MP3, nil
	default:
		return texttospeechpb.AudioEncoding_AUDIO_ENCODING_UNSPECIFIED, errors.Errorf("unsupported google audio encoding %q", format)
	}
}

// grpcHTTPStatus is the HTTP equivalent of the gRPC codes Google reports, as google.api_core maps them.
var grpcHTTPStatus = map[codes.Code]int{
	codes.Canceled:           499,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Unavailable:        http.StatusServiceUnavailable,
}

// googleHTTPStatus returns -1 for codes without an HTTP counterpart.
func googleHTTPStatus(code codes.Code) int {
	if httpStatus, ok := grpcHTTPStatus[code]; ok {
		return httpStatus
	}
	return -1
}

// mapGoogleError claims gRPC status errors, DEADLINE_EXCEEDED is a timeout.
func mapGoogleError(err error) (error, bool) {
	st, ok := status.FromError(err)
	if !ok {
		return nil, false
	}
	if st.Code() == codes.DeadlineExceeded {
		return NewAPITimeoutError(err), true
	}
	return NewAPIStatusError(st.Message(), googleHTTPStatus(st.Code()), "", "", err), true
}
