package synthesizer

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/petrzlen/vocode-plugins/pkg/models"
	"github.com/pkg/errors"
)

// recordingSynthesizer emits two frames per call and fails on texts containing "fail".
type recordingSynthesizer struct {
	mutex sync.Mutex
	texts []string
}

func (r *recordingSynthesizer) Capabilities() Capabilities { return Capabilities{} }
func (r *recordingSynthesizer) SampleRate() int           { return 16000 }
func (r *recordingSynthesizer) NumChannels() int          { return 1 }
func (r *recordingSynthesizer) Close() error              { return nil }

func (r *recordingSynthesizer) Synthesize(ctx context.Context, text string, connOptions ConnOptions) (*ChunkedStream, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	r.mutex.Lock()
	r.texts = append(r.texts, text)
	r.mutex.Unlock()

	run := func(ctx context.Context, emitter *Emitter) error {
		if strings.Contains(text, "fail") {
			return NewAPIStatusError("rejected", 400, "", "", errors.New(text))
		}
		for i := 0; i < 2; i++ {
			if err := emitter.Push(testFrame(1600)); err != nil {
				return err
			}
		}
		return nil
	}
	return newChunkedStream(ctx, "recording", text, connOptions, run), nil
}

func TestSynthesizeRoutineBuffersSentences(t *testing.T) {
	tts := &recordingSynthesizer{}
	textChan := make(chan string)
	audioChan := make(chan models.SynthesizedAudio, 100)

	done := make(chan struct{})
	go func() {
		SynthesizeRoutine(context.Background(), tts, ConnOptions{}, textChan, audioChan)
		close(done)
	}()

	for _, chunk := range []string{"1,", " Hello", " world.", " This will fail!", " Bye"} {
		textChan <- chunk
	}
	close(textChan)
	<-done
	close(audioChan)

	want := []string{"1, Hello world.", " This will fail!", " Bye"}
	if strings.Join(tts.texts, "|") != strings.Join(want, "|") {
		t.Fatalf("texts: got %q, want %q", tts.texts, want)
	}

	var frames []models.SynthesizedAudio
	for audio := range audioChan {
		frames = append(frames, audio)
	}
	// The failing sentence is skipped, the other two contribute two frames each.
	if len(frames) != 4 {
		t.Fatalf("got %d frames, want 4", len(frames))
	}
	if !frames[1].IsFinal || !frames[3].IsFinal || frames[0].IsFinal || frames[2].IsFinal {
		t.Errorf("final flags: %v %v %v %v", frames[0].IsFinal, frames[1].IsFinal, frames[2].IsFinal, frames[3].IsFinal)
	}
	if frames[0].RequestID == frames[2].RequestID {
		t.Error("each sentence should get its own request id")
	}
}

func TestSynthesizeRoutineStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	textChan := make(chan string)
	done := make(chan struct{})
	go func() {
		SynthesizeRoutine(ctx, &recordingSynthesizer{}, ConnOptions{}, textChan, make(chan models.SynthesizedAudio))
		close(done)
	}()
	cancel()
	<-done
}

func TestIsPunctuationMarkAtEnd(t *testing.T) {
	for s, want := range map[string]bool{"": false, "Hi.": true, "Well,": true, "Hmm": false, "Really?": true} {
		if got := isPunctuationMarkAtEnd(s); got != want {
			t.Errorf("isPunctuationMarkAtEnd(%q) = %v", s, got)
		}
	}
}
