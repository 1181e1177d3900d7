package audioio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/petrzlen/vocode-plugins/pkg/audio_utils"
	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/petrzlen/vocode-plugins/pkg/synthesizer"
)

// newPcmSynthesizer serves samples of raw 24kHz pcm through the openai adapter.
func newPcmSynthesizer(t *testing.T, samples int, status int) synthesizer.Synthesizer {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			http.Error(w, "nope", status)
			return
		}
		_, _ = w.Write(make([]byte, 2*samples))
	}))
	t.Cleanup(server.Close)

	tts, err := synthesizer.NewOpenAITTS(synthesizer.OpenAIOptions{
		APIKey:         "sk-test",
		BaseURL:        server.URL + "/v1",
		ResponseFormat: audio_utils.FormatPcm,
	})
	if err != nil {
		t.Fatalf("NewOpenAITTS: %v", err)
	}
	return tts
}

func receive(t *testing.T, writer <-chan []byte) (TwilioMessage, bool) {
	t.Helper()
	select {
	case msg, ok := <-writer:
		if !ok {
			return TwilioMessage{}, false
		}
		var message TwilioMessage
		if err := json.Unmarshal(msg, &message); err != nil {
			t.Fatalf("unmarshal %s: %v", msg, err)
		}
		return message, true
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a twilio message")
		return TwilioMessage{}, false
	}
}

const startMessage = `{"event":"start","sequenceNumber":"1","start":{"accountSid":"AC1","streamSid":"MZ42","callSid":"CA1","tracks":["inbound"],"mediaFormat":{"encoding":"audio/x-mulaw","sampleRate":8000,"channels":1}},"streamSid":"MZ42"}`

func TestTwilioHandlerSpeaksGreetingOnStart(t *testing.T) {
	// 0.15 s at 24kHz => 100ms + 50ms frames => 800 + 400 mu-law bytes
	th := NewTwilioHandler(context.Background(), newPcmSynthesizer(t, 3600, http.StatusOK), synthesizer.ConnOptions{}, "Hello caller.")

	th.GetReader() <- []byte(`{"event":"connected","protocol":"Call","version":"1.0.0"}`)
	th.GetReader() <- []byte(startMessage)

	for i, wantBytes := range []int{800, 400} {
		message, ok := receive(t, th.GetWriter())
		if !ok {
			t.Fatal("writer closed early")
		}
		if message.Event != TwilioEventMedia || message.StreamSid != "MZ42" || message.Media == nil {
			t.Fatalf("message %d: got %+v", i, message)
		}
		mulaw, err := base64.StdEncoding.DecodeString(message.Media.Payload)
		if err != nil {
			t.Fatalf("payload: %v", err)
		}
		if len(mulaw) != wantBytes {
			t.Errorf("message %d: got %d bytes, want %d", i, len(mulaw), wantBytes)
		}
		// silence encodes to 0xFF
		if len(mulaw) > 0 && mulaw[0] != 0xFF {
			t.Errorf("message %d: silence encoded as %#x", i, mulaw[0])
		}
	}

	mark, ok := receive(t, th.GetWriter())
	if !ok || mark.Event != TwilioEventMark || mark.Mark == nil || mark.Mark.Name == "" || mark.StreamSid != "MZ42" {
		t.Fatalf("expected a mark, got %+v", mark)
	}

	th.GetReader() <- []byte(`{"event":"mark","streamSid":"MZ42","mark":{"name":"` + mark.Mark.Name + `"}}`)
	th.GetReader() <- []byte(`{"event":"stop","streamSid":"MZ42","stop":{"accountSid":"AC1","callSid":"CA1"}}`)
	close(th.GetReader())
	if _, ok := receive(t, th.GetWriter()); ok {
		t.Fatal("writer should be closed after the reader")
	}
}

func TestTwilioHandlerSynthesisFailure(t *testing.T) {
	th := NewTwilioHandler(context.Background(), newPcmSynthesizer(t, 0, http.StatusUnauthorized), synthesizer.ConnOptions{}, "Hello caller.")
	th.GetReader() <- []byte(startMessage)

	done := make(chan struct{})
	go func() {
		// Give the greeting a chance to fail before hanging up.
		time.Sleep(100 * time.Millisecond)
		close(th.GetReader())
		close(done)
	}()
	for {
		message, ok := receive(t, th.GetWriter())
		if !ok {
			break
		}
		if message.Event == TwilioEventMedia {
			t.Fatalf("no audio expected on failure, got %+v", message)
		}
	}
	<-done
}

func TestTwilioHandlerIgnoresGarbage(t *testing.T) {
	th := NewTwilioHandler(context.Background(), newPcmSynthesizer(t, 100, http.StatusOK), synthesizer.ConnOptions{}, "")
	th.GetReader() <- []byte(`not json`)
	th.GetReader() <- []byte(`{"event":"media","media":{"track":"inbound","payload":"` + base64.StdEncoding.EncodeToString([]byte{0xFF, 0x7F}) + `"}}`)
	th.GetReader() <- []byte(`{"event":"media","media":{"payload":"%%%"}}`)
	th.GetReader() <- []byte(startMessage)
	close(th.GetReader())

	if message, ok := receive(t, th.GetWriter()); ok {
		t.Fatalf("nothing should be spoken without a greeting, got %+v", message)
	}
	if len(th.inbound) != 2 || th.inbound[0] != 0 {
		t.Errorf("inbound samples: got %v, want silence then one quiet sample", th.inbound)
	}
	if th.streamSid != "MZ42" {
		t.Errorf("stream sid: got %q", th.streamSid)
	}
}

func TestUtteranceToMulawConvertsAcrossFrames(t *testing.T) {
	// 11025 Hz does not divide into 100ms frames at 8kHz, per frame conversion would drop a sample each frame.
	ramp := &audio_utils.PCMBuffer{SampleRate: 11025, NumChannels: 1}
	for i := 0; i < 3306; i++ {
		ramp.Samples = append(ramp.Samples, int16(i*8))
	}
	frames := audio_utils.SplitFrames(ramp, audio_utils.DefaultSamplesPerChannel(11025))
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}

	chunks, err := utteranceToMulaw(frames)
	if err != nil {
		t.Fatalf("utteranceToMulaw: %v", err)
	}
	whole, err := audio_utils.Convert(ramp, TwilioSampleRate, 1)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	want := audio_utils.EncodeMulaw(whole.Samples)

	var got []byte
	for i, chunk := range chunks {
		if i < len(chunks)-1 && len(chunk) != 800 {
			t.Errorf("chunk %d: got %d bytes, want 800", i, len(chunk))
		}
		got = append(got, chunk...)
	}
	if len(got) != 2398 {
		t.Fatalf("got %d samples, want 2398", len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d: got %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestUtteranceToMulawEmpty(t *testing.T) {
	if _, err := utteranceToMulaw([]models.AudioFrame{}); err == nil {
		t.Error("expected an error for an utterance without a format")
	}
}

func TestTruncatePayload(t *testing.T) {
	long := strings.Repeat("A", 300)
	got := truncatePayload(`{"media":{"payload":"` + long + `"}}`)
	if strings.Contains(got, long) || !strings.Contains(got, "(truncated)") {
		t.Errorf("payload not truncated: %s", got)
	}
	short := `{"media":{"payload":"AAAA"}}`
	if truncatePayload(short) != short {
		t.Errorf("short payload changed: %s", truncatePayload(short))
	}
}
