package web

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/arguendo/arguendo/pkg/dialogue"
	"github.com/arguendo/arguendo/pkg/pipeline"
)

// healthTimeout bounds each capability probe on /healthz.
const healthTimeout = 5 * time.Second

// TurnResponse is the body returned for a completed turn.
type TurnResponse struct {
	TurnID     string `json:"turnId"`
	SessionID  string `json:"sessionId"`
	State      string `json:"state"`
	Transcript string `json:"transcript"`
	Reply      string `json:"reply"`
	AudioURL   string `json:"audioUrl"`
	DurationMs int64  `json:"durationMs"`
}

// ErrorResponse is the body returned for a failed turn or bad request.
type ErrorResponse struct {
	ErrorKind string `json:"errorKind"`
	Message   string `json:"message"`
}

// handleSubmitTurn accepts a multipart audio upload and runs one
// conversation turn.
func (s *Server) handleSubmitTurn(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			ErrorKind: string(pipeline.KindInvalidAudio),
			Message:   "missing audio file field",
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			ErrorKind: string(pipeline.KindInvalidAudio),
			Message:   "unreadable audio upload",
		})
	}
	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			ErrorKind: string(pipeline.KindInvalidAudio),
			Message:   "unreadable audio upload",
		})
	}
	f.Close()

	sessionID := c.FormValue("session")
	if sessionID == "" {
		sessionID = "default"
	}

	turn, err := s.orch.Run(c.UserContext(), sessionID, data, fileHeader.Header.Get("Content-Type"))
	if err != nil {
		return s.turnError(c, err)
	}

	return c.JSON(TurnResponse{
		TurnID:     turn.ID,
		SessionID:  turn.SessionID,
		State:      string(turn.State),
		Transcript: turn.Transcript,
		Reply:      turn.Reply,
		AudioURL:   "/api/audio/" + turn.ArtifactID,
		DurationMs: turn.Duration.Milliseconds(),
	})
}

// handleGetAudio serves a synthesized WAV artifact.
func (s *Server) handleGetAudio(c *fiber.Ctx) error {
	path, err := s.store.ArtifactPath(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			ErrorKind: "not_found",
			Message:   "no such artifact",
		})
	}
	c.Set(fiber.HeaderContentType, "audio/wav")
	return c.SendFile(path)
}

// handleGetHistory returns a session's transcript. Unknown sessions are
// 404; submitting a turn is the only way to create one.
func (s *Server) handleGetHistory(c *fiber.Ctx) error {
	session, err := s.sessions.Lookup(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			ErrorKind: string(pipeline.KindSessionNotFound),
			Message:   "no such session",
		})
	}
	return c.JSON(fiber.Map{
		"sessionId": session.ID(),
		"turns":     session.History(),
	})
}

// handleDeleteSession tears down a session and its transcript.
func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.sessions.Remove(c.Params("id")); err != nil {
		if errors.Is(err, dialogue.ErrSessionNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				ErrorKind: string(pipeline.KindSessionNotFound),
				Message:   "no such session",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			ErrorKind: "internal",
			Message:   err.Error(),
		})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleMetrics returns turn counters and rolling latency averages.
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	return c.JSON(s.orch.Metrics().Snapshot())
}

// handleHealth probes every capability and reports per-capability status.
// Overall status is degraded if any probe fails.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	type probe struct {
		Healthy bool   `json:"healthy"`
		Error   string `json:"error,omitempty"`
	}

	results := make(map[string]probe, len(s.checks))
	allHealthy := true
	for name, check := range s.checks {
		ctx, cancel := context.WithTimeout(c.UserContext(), healthTimeout)
		err := check.Health(ctx)
		cancel()
		if err != nil {
			allHealthy = false
			results[name] = probe{Healthy: false, Error: err.Error()}
		} else {
			results[name] = probe{Healthy: true}
		}
	}

	status := "ok"
	code := fiber.StatusOK
	if !allHealthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(fiber.Map{
		"status":       status,
		"capabilities": results,
	})
}

// turnError maps a pipeline failure to an HTTP response.
func (s *Server) turnError(c *fiber.Ctx, err error) error {
	var stageErr *pipeline.StageError
	if !errors.As(err, &stageErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			ErrorKind: "internal",
			Message:   err.Error(),
		})
	}

	code := fiber.StatusInternalServerError
	switch stageErr.Kind {
	case pipeline.KindInvalidAudio:
		code = fiber.StatusBadRequest
	case pipeline.KindSessionNotFound:
		code = fiber.StatusNotFound
	case pipeline.KindTimeout:
		code = fiber.StatusGatewayTimeout
	case pipeline.KindTranscriptionFailure, pipeline.KindDialogueFailure, pipeline.KindSynthesisFailure:
		code = fiber.StatusBadGateway
	case pipeline.KindStorageFailure:
		code = fiber.StatusInternalServerError
	}

	return c.Status(code).JSON(ErrorResponse{
		ErrorKind: string(stageErr.Kind),
		Message:   stageErr.Error(),
	})
}
