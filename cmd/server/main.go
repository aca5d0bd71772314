// arguendo server: voice debate-partner service.
// Accepts audio turns over HTTP, transcribes them, argues back, and
// returns the reply as a WAV artifact.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arguendo/arguendo/internal/config"
	"github.com/arguendo/arguendo/internal/httpc"
	"github.com/arguendo/arguendo/internal/log"
	"github.com/arguendo/arguendo/pkg/dialogue"
	"github.com/arguendo/arguendo/pkg/inference"
	"github.com/arguendo/arguendo/pkg/pipeline"
	"github.com/arguendo/arguendo/pkg/store"
	"github.com/arguendo/arguendo/pkg/stt"
	"github.com/arguendo/arguendo/pkg/synth"
	"github.com/arguendo/arguendo/pkg/tts"
	"github.com/arguendo/arguendo/pkg/web"
)

var version = "1.0.0"

func main() {
	addr := flag.String("addr", "", "listen address (overrides ARGUENDO_ADDR)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	godotenv.Load()

	cfg := config.Load()
	if *addr != "" {
		cfg.Addr = *addr
	}

	log.Init(cfg.LogLevel)
	logger := log.L()
	logger.Info("starting arguendo", "version", version, "addr", cfg.Addr)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	st, err := store.New(cfg.UploadDir, cfg.OutputDir, log.L())
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	sttProvider, err := buildSTT(cfg)
	if err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	defer sttProvider.Close()

	chatProvider, err := buildDialogue(cfg)
	if err != nil {
		return fmt.Errorf("dialogue: %w", err)
	}
	defer chatProvider.Close()

	ttsProvider, err := buildTTS(cfg)
	if err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	defer ttsProvider.Close()

	sessions := dialogue.NewManager(cfg.SystemPrompt, chatProvider, log.L())
	synthesizer := synth.New(ttsProvider, st, log.L())

	timeouts := pipeline.Timeouts{
		Transcribe: cfg.STTTimeout,
		Respond:    cfg.ChatTimeout,
		Synthesize: cfg.TTSTimeout,
	}

	var server *web.Server

	opts := []pipeline.Option{
		pipeline.WithNotify(func(ev pipeline.Event) {
			server.TurnHub().BroadcastJSON(ev)
		}),
	}
	if cfg.AbortEmptyTranscript {
		opts = append(opts, pipeline.WithAbortEmptyTranscript())
	}

	orch := pipeline.New(st, sttProvider, sessions, synthesizer, timeouts, log.L(), opts...)

	server = web.NewServer(cfg.Addr, web.Options{
		Orchestrator: orch,
		Sessions:     sessions,
		Store:        st,
		Checks: map[string]web.HealthChecker{
			"stt":      sttProvider,
			"dialogue": chatProvider,
			"tts":      ttsProvider,
		},
		Logger: log.L(),
	})

	// Serve until interrupted, then drain in-flight turns.
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- server.Shutdown() }()
	select {
	case err := <-done:
		return err
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timed out")
	}
}

// buildSTT wires the transcription provider.
func buildSTT(cfg config.Config) (stt.Provider, error) {
	if cfg.OpenAIKey == "" {
		return nil, stt.ErrNoAPIKey
	}
	return stt.NewWhisper(
		stt.WithAPIKey(cfg.OpenAIKey),
		stt.WithTimeout(cfg.STTTimeout),
		stt.WithHTTPClient(httpc.NewClient(0)),
		stt.WithLogger(log.L()),
	)
}

// buildDialogue wires the reply generator. With both keys present,
// OpenAI is primary and Gemini is the fallback.
func buildDialogue(cfg config.Config) (inference.Provider, error) {
	var providers []inference.Provider

	if cfg.OpenAIKey != "" {
		p, err := inference.NewClient(
			inference.WithAPIKey(cfg.OpenAIKey),
			inference.WithTimeout(cfg.ChatTimeout),
			inference.WithHTTPClient(httpc.Client),
			inference.WithLogger(log.L()),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	if cfg.GeminiKey != "" {
		p, err := inference.NewGemini(
			inference.WithAPIKey(cfg.GeminiKey),
			inference.WithTimeout(cfg.ChatTimeout),
			inference.WithHTTPClient(httpc.Client),
			inference.WithLogger(log.L()),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	switch len(providers) {
	case 0:
		return nil, inference.ErrNoAPIKey
	case 1:
		return providers[0], nil
	default:
		return inference.NewChainWithLogger(log.L(), providers...)
	}
}

// buildTTS wires the synthesis provider. ElevenLabs over WebSocket is
// primary with the HTTP endpoint as fallback; OpenAI TTS joins the
// chain when a key is available.
func buildTTS(cfg config.Config) (tts.Provider, error) {
	var providers []tts.Provider

	if cfg.ElevenLabsKey != "" {
		voice := tts.ResolveElevenLabsVoice(cfg.VoiceID)
		if voice == "" {
			voice = tts.ResolveElevenLabsVoice(tts.DefaultElevenLabsVoice)
		}

		ws, err := tts.NewElevenLabsWS(
			tts.WithAPIKey(cfg.ElevenLabsKey),
			tts.WithVoice(voice),
			tts.WithStreamTimeout(cfg.TTSTimeout),
			tts.WithLogger(log.L()),
		)
		if err != nil {
			return nil, err
		}
		httpFallback, err := tts.NewElevenLabs(
			tts.WithAPIKey(cfg.ElevenLabsKey),
			tts.WithVoice(voice),
			tts.WithTimeout(cfg.TTSTimeout),
			tts.WithLogger(log.L()),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, ws, httpFallback)
	}
	if cfg.OpenAIKey != "" {
		p, err := tts.NewOpenAI(
			tts.WithAPIKey(cfg.OpenAIKey),
			tts.WithTimeout(cfg.TTSTimeout),
			tts.WithLogger(log.L()),
		)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}

	switch len(providers) {
	case 0:
		return nil, tts.ErrNoAPIKey
	case 1:
		return providers[0], nil
	default:
		return tts.NewChainWithLogger(log.L(), providers...)
	}
}
