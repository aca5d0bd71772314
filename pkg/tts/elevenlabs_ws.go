package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	elevenLabsWSBaseURL  = "wss://api.elevenlabs.io/v1/text-to-speech"
	providerElevenLabsWS = "elevenlabs_ws"
	wsHandshakeTimeout   = 10 * time.Second
)

// ElevenLabsWS implements Provider for ElevenLabs TTS over the
// stream-input WebSocket API. Each synthesis request opens its own
// connection: BOS, the full text with an immediate flush, then EOS.
// Audio chunks arrive base64-encoded and are delivered in order.
type ElevenLabsWS struct {
	config  *Config
	logger  *slog.Logger
	baseURL string
	dialer  *websocket.Dialer
}

// NewElevenLabsWS creates a WebSocket-based ElevenLabs TTS provider.
func NewElevenLabsWS(opts ...Option) (*ElevenLabsWS, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.ValidateWithVoice(); err != nil {
		return nil, err
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsWSBaseURL
	}

	return &ElevenLabsWS{
		config:  cfg,
		logger:  cfg.Logger.With("component", "tts.elevenlabs_ws"),
		baseURL: baseURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout},
	}, nil
}

// Synthesize converts text to audio by draining a stream.
func (e *ElevenLabsWS) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	stream, err := e.Stream(ctx, text)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var audio []byte
	var firstByteMs int64
	for {
		chunk, err := stream.Read()
		if err != nil {
			return nil, err
		}
		if chunk == nil {
			break
		}
		if firstByteMs == 0 {
			firstByteMs = time.Since(start).Milliseconds()
		}
		audio = append(audio, chunk...)
	}

	sampleRate := SampleRateFromEncoding(e.config.OutputFormat)
	return &AudioResult{
		Audio:     audio,
		Format:    stream.Format(),
		CharCount: len(text),
		LatencyMs: firstByteMs,
		Duration:  time.Duration(float64(len(audio)/2) / float64(sampleRate) * float64(time.Second)),
	}, nil
}

// Stream opens a WebSocket, sends the text, and returns a stream of
// decoded audio chunks.
func (e *ElevenLabsWS) Stream(ctx context.Context, text string) (AudioStream, error) {
	if text == "" {
		return nil, WrapError(providerElevenLabsWS, ErrEmptyText)
	}

	url := fmt.Sprintf("%s/%s/stream-input?model_id=%s&output_format=%s",
		e.baseURL, e.config.VoiceID, e.config.ModelID, e.config.OutputFormat)

	headers := http.Header{}
	headers.Set("xi-api-key", e.config.APIKey)

	conn, resp, err := e.dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, WrapError(providerElevenLabsWS,
				fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err))
		}
		return nil, WrapError(providerElevenLabsWS, fmt.Errorf("websocket dial failed: %w", err))
	}

	// BOS carries voice settings; the space initializes the generation.
	bos := map[string]interface{}{
		"text": " ",
		"voice_settings": map[string]interface{}{
			"stability":        e.config.VoiceSettings.Stability,
			"similarity_boost": e.config.VoiceSettings.SimilarityBoost,
		},
	}
	if err := conn.WriteJSON(bos); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabsWS, fmt.Errorf("send BOS: %w", err))
	}

	if err := conn.WriteJSON(map[string]interface{}{"text": text + " ", "flush": true}); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabsWS, fmt.Errorf("send text: %w", err))
	}

	// EOS, so the server closes the stream after the final chunk.
	if err := conn.WriteJSON(map[string]interface{}{"text": ""}); err != nil {
		conn.Close()
		return nil, WrapError(providerElevenLabsWS, fmt.Errorf("send EOS: %w", err))
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else {
		conn.SetReadDeadline(time.Now().Add(e.config.StreamTimeout))
	}

	e.logger.Debug("websocket stream opened",
		"voice", e.config.VoiceID,
		"model", e.config.ModelID,
		"chars", len(text),
	)

	return &wsStream{
		conn:   conn,
		logger: e.logger,
		format: AudioFormat{
			Encoding:   e.config.OutputFormat,
			SampleRate: SampleRateFromEncoding(e.config.OutputFormat),
			Channels:   1,
			BitDepth:   16,
		},
	}, nil
}

// Health validates credentials against the HTTP API. The WebSocket
// endpoint has no cheap probe, so the user endpoint stands in.
func (e *ElevenLabsWS) Health(ctx context.Context) error {
	url := elevenLabsBaseURL + "/user"
	if e.config.BaseURL != "" && !strings.HasPrefix(e.config.BaseURL, "ws") {
		url = e.config.BaseURL + "/user"
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return WrapError(providerElevenLabsWS, err)
	}
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return WrapError(providerElevenLabsWS, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Provider: providerElevenLabsWS}
	}
	return nil
}

// Close releases resources. Connections are per-request, so there is
// nothing long-lived to tear down.
func (e *ElevenLabsWS) Close() error {
	return nil
}

// wsStream reads audio messages from a stream-input connection.
type wsStream struct {
	conn   *websocket.Conn
	logger *slog.Logger
	format AudioFormat

	mu     sync.Mutex
	done   bool
	closed bool
}

// Read returns the next decoded audio chunk, or nil when the server
// signals the final message.
func (s *wsStream) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.done {
		return nil, nil
	}

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.done = true
				return nil, nil
			}
			return nil, WrapError(providerElevenLabsWS, err)
		}

		var msg struct {
			Audio   string `json:"audio"`
			IsFinal bool   `json:"isFinal"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Warn("unparseable websocket message", "error", err)
			continue
		}

		if msg.Error != "" {
			return nil, WrapError(providerElevenLabsWS, fmt.Errorf("server error: %s", msg.Error))
		}
		if msg.IsFinal {
			s.done = true
			return nil, nil
		}
		if msg.Audio == "" {
			continue
		}

		chunk, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return nil, WrapError(providerElevenLabsWS, fmt.Errorf("decode audio: %w", err))
		}
		return chunk, nil
	}
}

// Close terminates the connection.
func (s *wsStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// Format returns the audio format.
func (s *wsStream) Format() AudioFormat {
	return s.format
}

// Verify ElevenLabsWS implements Provider at compile time.
var _ Provider = (*ElevenLabsWS)(nil)
