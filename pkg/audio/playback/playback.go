// Package playback provides an interruptible speaker-output player for
// synthesised speech.
//
// The player decodes MP3 or WAV payloads returned by TTS providers and plays
// them through the system speaker via beep. Every Play call is tied to a
// context: cancelling the context stops playback immediately, which is what
// makes deterministic barge-in possible — the state machine cancels the
// playback context on a user interrupt and Play returns with ctx.Err().
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Format identifies the container of a synthesised audio payload.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// ErrUnsupportedFormat is returned by [Player.Play] for unknown formats.
var ErrUnsupportedFormat = errors.New("playback: unsupported audio format")

// Player plays synthesised audio through the system speaker. It is safe for
// concurrent use, but playback itself is serialised: a second Play waits for
// the speaker lock.
type Player struct {
	mu       sync.Mutex
	initRate beep.SampleRate
}

// New creates a Player. The speaker device is initialised lazily on first use
// with the sample rate of the first decoded payload.
func New() *Player {
	return &Player{}
}

// nopReadCloser adapts a bytes.Reader for decoders that take ownership.
type nopReadCloser struct{ io.Reader }

func (nopReadCloser) Close() error { return nil }

// Play decodes data and plays it to completion or until ctx is cancelled,
// whichever comes first. It returns ctx.Err() when playback was interrupted
// and nil when the payload finished naturally.
func (p *Player) Play(ctx context.Context, data []byte, format Format) error {
	if len(data) == 0 {
		return nil
	}

	var (
		streamer beep.StreamSeekCloser
		bformat  beep.Format
		err      error
	)
	switch format {
	case FormatMP3:
		streamer, bformat, err = mp3.Decode(nopReadCloser{bytes.NewReader(data)})
	case FormatWAV:
		streamer, bformat, err = wav.Decode(bytes.NewReader(data))
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("playback: decode %s: %w", format, err)
	}
	defer streamer.Close()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.initRate == 0 {
		if err := speaker.Init(bformat.SampleRate, bformat.SampleRate.N(100*time.Millisecond)); err != nil {
			return fmt.Errorf("playback: init speaker: %w", err)
		}
		p.initRate = bformat.SampleRate
	}

	var stream beep.Streamer = streamer
	if bformat.SampleRate != p.initRate {
		stream = beep.Resample(4, bformat.SampleRate, p.initRate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(stream, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
