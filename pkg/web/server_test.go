package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arguendo/arguendo/pkg/dialogue"
	"github.com/arguendo/arguendo/pkg/inference"
	"github.com/arguendo/arguendo/pkg/pipeline"
	"github.com/arguendo/arguendo/pkg/store"
	"github.com/arguendo/arguendo/pkg/stt"
	"github.com/arguendo/arguendo/pkg/synth"
	"github.com/arguendo/arguendo/pkg/tts"
)

func newTestServer(t *testing.T, sttp stt.Provider, infp inference.Provider, ttsp tts.Provider) *Server {
	t.Helper()
	logger := slog.Default()

	st, err := store.New(t.TempDir(), t.TempDir(), logger)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	sessions := dialogue.NewManager("You are a debate partner.", infp, logger)
	sy := synth.New(ttsp, st, logger)
	orch := pipeline.New(st, sttp, sessions, sy, pipeline.Timeouts{
		Transcribe: 5 * time.Second,
		Respond:    5 * time.Second,
		Synthesize: 5 * time.Second,
	}, logger)

	return NewServer(":0", Options{
		Orchestrator: orch,
		Sessions:     sessions,
		Store:        st,
		Checks: map[string]HealthChecker{
			"stt":      sttp,
			"dialogue": infp,
			"tts":      ttsp,
		},
		Logger: logger,
	})
}

func multipartUpload(t *testing.T, session string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if session != "" {
		if err := w.WriteField("session", session); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	fw, err := w.CreateFormFile("audio", "utterance.wav")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	fw.Write(audio)
	w.Close()
	return &buf, w.FormDataContentType()
}

func submitTurn(t *testing.T, s *Server, session string) TurnResponse {
	t.Helper()
	body, contentType := multipartUpload(t, session, []byte("fake audio bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/turns", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}

	var turn TurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&turn); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return turn
}

func TestSubmitTurn(t *testing.T) {
	s := newTestServer(t,
		stt.NewMockWithText("dogs are the best pets"),
		inference.NewMockWithReply("Cats would beg to differ."),
		tts.NewMock(),
	)

	turn := submitTurn(t, s, "debate-1")
	if turn.SessionID != "debate-1" {
		t.Errorf("unexpected session id: %s", turn.SessionID)
	}
	if turn.Transcript != "dogs are the best pets" {
		t.Errorf("unexpected transcript: %q", turn.Transcript)
	}
	if turn.Reply != "Cats would beg to differ." {
		t.Errorf("unexpected reply: %q", turn.Reply)
	}
	if turn.State != string(pipeline.StateDelivered) {
		t.Errorf("unexpected state: %s", turn.State)
	}

	// The artifact URL must serve a WAV.
	req := httptest.NewRequest(http.MethodGet, turn.AudioURL, nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for artifact, got %d", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	if len(data) < 44 || string(data[0:4]) != "RIFF" {
		t.Error("expected a WAV payload")
	}
}

func TestSubmitTurnMissingAudio(t *testing.T) {
	s := newTestServer(t, stt.NewMock(), inference.NewMock(), tts.NewMock())

	req := httptest.NewRequest(http.MethodPost, "/api/turns", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var body ErrorResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.ErrorKind != string(pipeline.KindInvalidAudio) {
		t.Errorf("unexpected error kind: %s", body.ErrorKind)
	}
}

func TestSubmitTurnSynthesisFailure(t *testing.T) {
	s := newTestServer(t,
		stt.NewMockWithText("hello"),
		inference.NewMockWithReply("hi"),
		tts.WithError(errors.New("voice service down")),
	)

	body, contentType := multipartUpload(t, "s", []byte("fake audio"))
	req := httptest.NewRequest(http.MethodPost, "/api/turns", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}

	var errBody ErrorResponse
	json.NewDecoder(resp.Body).Decode(&errBody)
	if errBody.ErrorKind != string(pipeline.KindSynthesisFailure) {
		t.Errorf("unexpected error kind: %s", errBody.ErrorKind)
	}
}

func TestGetAudioNotFound(t *testing.T) {
	s := newTestServer(t, stt.NewMock(), inference.NewMock(), tts.NewMock())

	req := httptest.NewRequest(http.MethodGet, "/api/audio/missing.wav", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionHistory(t *testing.T) {
	s := newTestServer(t,
		stt.NewMockWithText("opening argument"),
		inference.NewMockWithReply("rebuttal"),
		tts.NewMock(),
	)

	t.Run("unknown session is 404", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/nobody/history", nil)
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404, got %d", resp.StatusCode)
		}
	})

	submitTurn(t, s, "court")

	t.Run("history after a turn", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sessions/court/history", nil)
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("expected 200, got %d", resp.StatusCode)
		}

		var body struct {
			SessionID string `json:"sessionId"`
			Turns     []struct {
				Role string `json:"role"`
				Text string `json:"text"`
			} `json:"turns"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if len(body.Turns) != 2 {
			t.Fatalf("expected 2 turns, got %d", len(body.Turns))
		}
		if body.Turns[0].Role != "user" || body.Turns[1].Role != "assistant" {
			t.Errorf("unexpected roles: %+v", body.Turns)
		}
	})

	t.Run("delete tears the session down", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/sessions/court", nil)
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", resp.StatusCode)
		}

		req = httptest.NewRequest(http.MethodDelete, "/api/sessions/court", nil)
		resp, err = s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("expected 404 on double delete, got %d", resp.StatusCode)
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t,
		stt.NewMockWithText("hello"),
		inference.NewMockWithReply("hi"),
		tts.NewMock(),
	)
	submitTurn(t, s, "m")

	req := httptest.NewRequest(http.MethodGet, "/api/metrics", nil)
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var snap pipeline.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if snap.Turns != 1 {
		t.Errorf("expected 1 turn, got %d", snap.Turns)
	}
	if snap.Failures != 0 {
		t.Errorf("expected 0 failures, got %d", snap.Failures)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		s := newTestServer(t, stt.NewMock(), inference.NewMock(), tts.NewMock())

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("expected 200, got %d", resp.StatusCode)
		}
	})

	t.Run("degraded when a capability is down", func(t *testing.T) {
		s := newTestServer(t,
			stt.WithError(errors.New("stt down")),
			inference.NewMock(),
			tts.NewMock(),
		)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		resp, err := s.App().Test(req, -1)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", resp.StatusCode)
		}

		var body struct {
			Status       string `json:"status"`
			Capabilities map[string]struct {
				Healthy bool `json:"healthy"`
			} `json:"capabilities"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if body.Status != "degraded" {
			t.Errorf("expected degraded status, got %s", body.Status)
		}
		if body.Capabilities["stt"].Healthy {
			t.Error("expected stt to be unhealthy")
		}
		if !body.Capabilities["tts"].Healthy {
			t.Error("expected tts to be healthy")
		}
	})
}
