package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAV wraps raw 16-bit signed little-endian PCM in a WAV container.
// Batch HTTP transcription endpoints expect a self-describing container
// rather than headerless PCM.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("audio: invalid wav format %d Hz / %d ch", sampleRate, channels)
	}

	n := len(pcm) / 2
	data := make([]int, n)
	for i := range n {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
	}

	var seeker memWriteSeeker
	enc := wav.NewEncoder(&seeker, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: finalise wav: %w", err)
	}
	return seeker.buf, nil
}

// memWriteSeeker is an in-memory io.WriteSeeker for the wav encoder, which
// needs to seek back and patch chunk sizes on Close.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	if need := m.pos + len(p); need > len(m.buf) {
		grown := make([]byte, need)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:], p)
	m.pos += len(p)
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = int64(m.pos) + offset
	case io.SeekEnd:
		pos = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("audio: invalid seek whence")
	}
	if pos < 0 {
		return 0, errors.New("audio: seek before start")
	}
	m.pos = int(pos)
	return pos, nil
}
