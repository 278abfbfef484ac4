package elevenlabs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/coder/websocket"

	"github.com/MrWong99/sonus/pkg/provider/tts"
)

// defaultWSHost is the production WebSocket endpoint host.
const defaultWSHost = "wss://api.elevenlabs.io"

// streamMessage is a client frame on the stream-input channel. The first
// frame carries the voice settings and API key, the last one an empty text
// to close the input.
type streamMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	APIKey        string         `json:"xi_api_key,omitempty"`
	TryTrigger    bool           `json:"try_trigger_generation,omitempty"`
}

// streamChunk is a server frame. Audio is base64-encoded MP3; IsFinal marks
// the last chunk of the utterance.
type streamChunk struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// synthesizeStream runs one utterance through the stream-input WebSocket
// endpoint and returns the assembled MP3 payload. A fresh connection is
// dialled per call; the endpoint closes the channel after the final chunk
// anyway.
func (p *Provider) synthesizeStream(ctx context.Context, text string) (tts.Clip, error) {
	url := fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?model_id=%s", p.wsHost, p.voiceID, p.model)
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("elevenlabs: dial stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")
	conn.SetReadLimit(1 << 22)

	frames := []streamMessage{
		{
			Text:   " ",
			APIKey: p.apiKey,
			VoiceSettings: &voiceSettings{
				Stability:       p.stability,
				SimilarityBoost: 0.75,
			},
		},
		{Text: text, TryTrigger: true},
		{Text: ""},
	}
	for _, frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			return tts.Clip{}, fmt.Errorf("elevenlabs: encode stream frame: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return tts.Clip{}, fmt.Errorf("elevenlabs: send stream frame: %w", err)
		}
	}

	var buf bytes.Buffer
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			// A normal close after audio has arrived means the server ended
			// the utterance without an explicit final marker.
			if buf.Len() > 0 && websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return tts.Clip{}, fmt.Errorf("elevenlabs: read stream: %w", err)
		}
		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			return tts.Clip{}, fmt.Errorf("elevenlabs: decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return tts.Clip{}, fmt.Errorf("elevenlabs: stream error %s: %s", chunk.Error, chunk.Message)
		}
		if chunk.Audio != "" {
			raw, err := base64.StdEncoding.DecodeString(chunk.Audio)
			if err != nil {
				return tts.Clip{}, fmt.Errorf("elevenlabs: decode audio chunk: %w", err)
			}
			buf.Write(raw)
		}
		if chunk.IsFinal {
			break
		}
	}

	return tts.Clip{Data: buf.Bytes(), Encoding: tts.EncodingMP3}, nil
}
