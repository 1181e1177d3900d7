package audioio

import (
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Speakers plays one utterance at a time on the default audio device.
//
// The state flow is:
//  1. player == nil => nothing going on
//  2. Play grabs mutex => starting to play
//  3. Stop (or playback done) grabs mutex, pauses the device and waits until the monitor routine cleaned up.
//  4. Before another Play, you either have to wait on the returned WaitGroup, or call Stop().
//
// Invariant: There is at most one monitor routine running at the same time.
type Speakers struct {
	otoContext  *oto.Context
	sampleRate  int
	numChannels int

	mutex    sync.Mutex // Protects player, done and stopFlag
	player   *oto.Player
	done     *sync.WaitGroup
	stopFlag bool
}

// NewSpeakers opens the audio device, you should **not** create more than one per process.
func NewSpeakers(sampleRate int, numChannels int) (*Speakers, error) {
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: numChannels,
		Format:       oto.FormatSignedInt16LE,
	}

	log.Info().Int("sample_rate", sampleRate).Int("num_channels", numChannels).Msg("speakers - will wait until ready")
	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create oto context")
	}
	<-readyChan // Wait for the audio hardware to be ready (about 200ms empirically)
	log.Info().Msg("speakers - context ready")

	return &Speakers{
		otoContext:  otoCtx,
		sampleRate:  sampleRate,
		numChannels: numChannels,
	}, nil
}

func (s *Speakers) SampleRate() int  { return s.sampleRate }
func (s *Speakers) NumChannels() int { return s.numChannels }

// Play starts the playback and returns a WaitGroup to block until it is done.
func (s *Speakers) Play(audioOutput io.Reader) (*sync.WaitGroup, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.player != nil {
		return nil, errors.New("speakers are busy, wait for the previous playback or call Stop first")
	}

	done := &sync.WaitGroup{}
	done.Add(1)
	s.done = done
	s.player = s.otoContext.NewPlayer(audioOutput)
	s.player.Play()

	go s.monitor(s.player, done)
	return done, nil
}

func (s *Speakers) Stop() error {
	s.mutex.Lock()
	if s.stopFlag {
		s.mutex.Unlock()
		// This can only really happen if multiple callers request Stop in a very brief period.
		return errors.New("double-stop called, the player is already being stopped")
	}
	if s.player == nil {
		s.mutex.Unlock()
		return nil
	}

	log.Debug().Msg("speakers stopping ...")
	s.stopFlag = true
	s.player.Pause()
	untilStopped := s.done
	s.mutex.Unlock()

	untilStopped.Wait()
	return nil
}

func (s *Speakers) monitor(player *oto.Player, done *sync.WaitGroup) {
	defer done.Done()
	startTime := time.Now()

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		s.mutex.Lock()
		finished := !player.IsPlaying() || s.stopFlag
		s.mutex.Unlock()
		if finished {
			break
		}
	}

	s.mutex.Lock()
	errLog(player.Close(), "player.Close")
	s.player = nil
	s.done = nil
	s.stopFlag = false
	s.mutex.Unlock()

	log.Debug().Dur("playback_duration", time.Since(startTime)).Msg("speakers playback done")
}
