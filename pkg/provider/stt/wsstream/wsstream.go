// Package wsstream provides a streaming-WebSocket STT provider.
//
// The wire protocol is a duplex channel: the client sends binary audio chunks
// (a few KB per message) interleaved with JSON control frames ("configure",
// "flush", "reset", "get-status"); the server answers with JSON event frames
// ("session-ready", "transcription", "processing", "error"). A flush control
// frame forces the server to process any buffered-but-unsent audio so no
// trailing audio is dropped when the utterance ends.
//
// The connection is dialled lazily, reused across turns, and dropped on any
// protocol error so the next turn redials.
package wsstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/sonus/pkg/provider/stt"
)

const (
	// chunkSize bounds each binary audio message.
	chunkSize = 4096

	defaultFinalWait = 10 * time.Second
)

// Compile-time assertion that Provider implements stt.Transcriber.
var _ stt.Transcriber = (*Provider)(nil)

// controlFrame is a JSON message sent by the client.
type controlFrame struct {
	Type       string `json:"type"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	Language   string `json:"language,omitempty"`
}

// eventFrame is a JSON message received from the server.
type eventFrame struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionId,omitempty"`
	Text      string  `json:"text,omitempty"`
	IsFinal   bool    `json:"isFinal,omitempty"`
	Duration  float64 `json:"duration,omitempty"`
	Language  string  `json:"language,omitempty"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Message   string  `json:"message,omitempty"`
	Code      string  `json:"code,omitempty"`
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithFinalWait bounds how long Transcribe waits for the final transcription
// event after a flush. Defaults to 10s.
func WithFinalWait(d time.Duration) Option {
	return func(p *Provider) { p.finalWait = d }
}

// WithHeaderToken sets a bearer token sent on the dial request.
func WithHeaderToken(token string) Option {
	return func(p *Provider) { p.token = token }
}

// Provider implements stt.Transcriber over the streaming WebSocket protocol.
// Transcribe calls are serialised; the runtime issues at most one per session
// anyway.
type Provider struct {
	url       string
	token     string
	finalWait time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	sessionID string
}

// New creates a Provider for the WebSocket endpoint at url
// (e.g. "ws://localhost:9090/stt").
func New(url string, opts ...Option) (*Provider, error) {
	if url == "" {
		return nil, errors.New("wsstream: url must not be empty")
	}
	p := &Provider{url: url, finalWait: defaultFinalWait}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe streams the utterance over the channel, flushes, and waits for
// the final transcription event.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, format stt.Format) (string, error) {
	if len(pcm) == 0 {
		return "", nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	conn, err := p.ensureConn(ctx, format)
	if err != nil {
		return "", err
	}

	text, err := p.streamUtterance(ctx, conn, pcm)
	if err != nil {
		// Drop the connection; the next turn redials.
		p.closeLocked()
		return "", err
	}
	return text, nil
}

// Reset sends a reset control frame, discarding any server-side buffered
// audio. Used when a turn is abandoned.
func (p *Provider) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	if err := writeControl(ctx, p.conn, controlFrame{Type: "reset"}); err != nil {
		p.closeLocked()
		return fmt.Errorf("wsstream: reset: %w", err)
	}
	return nil
}

// SessionStatus is the server's reply to a get-status control frame.
type SessionStatus struct {
	SessionID string

	// Buffered is how much audio the server holds that has not been
	// processed yet.
	Buffered time.Duration
}

// Status queries the server for its session state. It requires an open
// session; nothing is dialled on demand.
func (p *Provider) Status(ctx context.Context) (SessionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return SessionStatus{}, errors.New("wsstream: no open session")
	}
	if err := writeControl(ctx, p.conn, controlFrame{Type: "get-status"}); err != nil {
		p.closeLocked()
		return SessionStatus{}, fmt.Errorf("wsstream: get-status: %w", err)
	}
	for {
		ev, err := readEvent(ctx, p.conn)
		if err != nil {
			p.closeLocked()
			return SessionStatus{}, fmt.Errorf("wsstream: await status: %w", err)
		}
		switch ev.Type {
		case "status":
			return SessionStatus{
				SessionID: ev.SessionID,
				Buffered:  time.Duration(ev.Duration * float64(time.Second)),
			}, nil
		case "error":
			return SessionStatus{}, fmt.Errorf("wsstream: server error %s: %s", ev.Code, ev.Message)
		default:
			slog.Debug("wsstream ignoring event", "type", ev.Type)
		}
	}
}

// Close tears down the connection. Safe to call multiple times.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

// ensureConn dials if needed, waits for session-ready, and sends the
// configure frame. Must hold p.mu.
func (p *Provider) ensureConn(ctx context.Context, format stt.Format) (*websocket.Conn, error) {
	if p.conn != nil {
		return p.conn, nil
	}

	opts := &websocket.DialOptions{}
	if p.token != "" {
		opts.HTTPHeader = map[string][]string{"Authorization": {"Bearer " + p.token}}
	}
	conn, _, err := websocket.Dial(ctx, p.url, opts)
	if err != nil {
		return nil, fmt.Errorf("wsstream: dial %s: %w", p.url, err)
	}
	conn.SetReadLimit(1 << 20)

	ev, err := readEvent(ctx, conn)
	if err != nil {
		conn.Close(websocket.StatusProtocolError, "no session-ready")
		return nil, fmt.Errorf("wsstream: await session-ready: %w", err)
	}
	if ev.Type != "session-ready" {
		conn.Close(websocket.StatusProtocolError, "unexpected first frame")
		return nil, fmt.Errorf("wsstream: expected session-ready, got %q", ev.Type)
	}
	p.sessionID = ev.SessionID

	cfgFrame := controlFrame{
		Type:       "configure",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Language:   format.Language,
	}
	if err := writeControl(ctx, conn, cfgFrame); err != nil {
		conn.Close(websocket.StatusProtocolError, "configure failed")
		return nil, fmt.Errorf("wsstream: configure: %w", err)
	}

	slog.Debug("wsstream session ready", "session_id", p.sessionID)
	p.conn = conn
	return conn, nil
}

// streamUtterance sends the PCM in bounded chunks, flushes, and collects the
// final transcript. Must hold p.mu.
func (p *Provider) streamUtterance(ctx context.Context, conn *websocket.Conn, pcm []byte) (string, error) {
	for off := 0; off < len(pcm); off += chunkSize {
		end := off + chunkSize
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return "", fmt.Errorf("wsstream: send audio: %w", err)
		}
	}
	if err := writeControl(ctx, conn, controlFrame{Type: "flush"}); err != nil {
		return "", fmt.Errorf("wsstream: flush: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.finalWait)
	defer cancel()

	// Partial transcriptions may precede the final; keep the last text seen.
	// If the wait window closes without a final, the newest partial is
	// accepted as the transcript.
	var lastText string
	for {
		ev, err := readEvent(waitCtx, conn)
		if err != nil {
			if lastText != "" && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				slog.Warn("wsstream: no final transcription before deadline, using last partial",
					"session_id", p.sessionID)
				// The server may still emit the final later; drop the
				// connection so the stale frame cannot leak into the next turn.
				p.closeLocked()
				return lastText, nil
			}
			return "", fmt.Errorf("wsstream: await transcription: %w", err)
		}
		switch ev.Type {
		case "transcription":
			if ev.IsFinal {
				return ev.Text, nil
			}
			lastText = ev.Text
		case "processing":
			// Progress notification; keep waiting.
		case "error":
			return "", fmt.Errorf("wsstream: server error %s: %s", ev.Code, ev.Message)
		default:
			slog.Debug("wsstream ignoring event", "type", ev.Type)
		}
	}
}

func (p *Provider) closeLocked() {
	if p.conn != nil {
		p.conn.Close(websocket.StatusNormalClosure, "done")
		p.conn = nil
		p.sessionID = ""
	}
}

func writeControl(ctx context.Context, conn *websocket.Conn, frame controlFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func readEvent(ctx context.Context, conn *websocket.Conn) (eventFrame, error) {
	var ev eventFrame
	_, data, err := conn.Read(ctx)
	if err != nil {
		return ev, err
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, fmt.Errorf("decode event frame: %w", err)
	}
	return ev, nil
}
