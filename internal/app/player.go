package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/sonus/internal/session"
	"github.com/MrWong99/sonus/pkg/audio/playback"
	"github.com/MrWong99/sonus/pkg/provider/tts"
)

// clipPlayer adapts the speaker player to the session's clip contract.
type clipPlayer struct {
	inner *playback.Player
}

var _ session.Player = (*clipPlayer)(nil)

func (p *clipPlayer) Play(ctx context.Context, clip tts.Clip) error {
	var format playback.Format
	switch clip.Encoding {
	case tts.EncodingMP3:
		format = playback.FormatMP3
	case tts.EncodingWAV:
		format = playback.FormatWAV
	default:
		return fmt.Errorf("app: play clip: %w (%q)", playback.ErrUnsupportedFormat, clip.Encoding)
	}
	return p.inner.Play(ctx, clip.Data, format)
}
