package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cartrita/livectl/internal/assist"
	"github.com/cartrita/livectl/internal/capture"
	"github.com/cartrita/livectl/internal/config"
	"github.com/cartrita/livectl/internal/media"
	"github.com/cartrita/livectl/internal/server"
	"github.com/cartrita/livectl/internal/session"
	"github.com/cartrita/livectl/internal/speech"
	"github.com/cartrita/livectl/internal/storage"
	"github.com/cartrita/livectl/internal/transcribe"
	"github.com/cartrita/livectl/internal/vision"
	"github.com/cartrita/livectl/internal/wake"
)

func main() {
	log.Println("livectl: starting")

	configPath := os.Getenv(config.EnvPrefix + "CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer func() { _ = store.Close() }()

	hub := server.NewHub()

	provider := &media.DeviceProvider{CameraDevice: cfg.CameraDevice}
	defer provider.Terminate()

	manager := media.NewManager(provider)
	coordinator := media.NewCoordinator(manager)
	coordinator.OnChange(func(capability media.Capability, state media.PermissionState) {
		hub.BroadcastPermissionChanged(capability, state, coordinator.Guidance(capability))
	})

	transcriber := transcribe.NewClient(cfg.AssistantBaseURL, nil)
	detector := wake.NewDetector(transcriber, cfg.MinChunkBytes)

	visionClient := vision.NewClient(cfg.AssistantBaseURL, nil)

	speaker := speech.NewPlayer(
		speech.NewClient(cfg.AssistantBaseURL, nil),
		speech.PortAudioSink{},
		speech.PlayerOptions{
			Voice: cfg.Voice,
			Speed: cfg.SpeechRate,
			OnSpeaking: func(speaking bool) {
				hub.BroadcastSpeakingChanged(speaking)
			},
		},
	)

	replier, err := buildReplier(&cfg)
	if err != nil {
		log.Printf("warning: assistant replies disabled: %v", err)
	}

	controller := session.NewController(session.Options{
		Config: session.Config{
			AckDelay:    cfg.ParsedAckDelay(),
			AckText:     cfg.AckText,
			StopAckText: cfg.StopAckText,
			Acquire: media.AcquireOptions{
				SampleRates: cfg.SampleRateCandidates(),
				FrameWidth:  cfg.FrameWidth,
				FrameHeight: cfg.FrameHeight,
			},
		},
		Acquirer: manager,
		NewRecorder: func(track media.AudioTrack) (session.Recorder, error) {
			rec, err := capture.NewRecorder(track, capture.Config{
				ChunkInterval: cfg.ParsedChunkInterval(),
				BufferChunks:  cfg.ChunkBuffer,
			})
			if err != nil {
				return nil, err
			}
			return rec, nil
		},
		NewFrames: func(track media.VideoTrack, onAnalysis func(vision.Analysis)) (session.FrameManager, error) {
			frames, err := vision.NewManager(track, vision.Config{
				Width:    cfg.FrameWidth,
				Height:   cfg.FrameHeight,
				Quality:  cfg.FrameQuality,
				Interval: cfg.ParsedFrameInterval(),
			}, vision.Options{
				Analyzer:   visionClient,
				OnAnalysis: onAnalysis,
			})
			if err != nil {
				return nil, err
			}
			return frames, nil
		},
		Detector:    detector,
		Speaker:     speaker,
		Replier:     replier,
		Store:       store,
		Hub:         hub,
		Permissions: coordinator,
	})

	handler := server.Handler(hub, controller, coordinator, store, func() []string { return warnings })
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler}

	go func() {
		log.Printf("livectl: control API at http://%s", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Println("livectl: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := controller.Stop(shutdownCtx); err != nil {
		log.Printf("warning: end live session: %v", err)
	}
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
}

// buildReplier selects the reply provider from chat_model: "assistant"
// routes through the dashboard backend, anything else is provider/model.
func buildReplier(cfg *config.Config) (session.Replier, error) {
	if cfg.ChatModel == "assistant" {
		return assist.NewReplier("assistant", "", "", assist.WithBaseURL(cfg.AssistantBaseURL))
	}

	provider, model, err := assist.ParseModel(cfg.ChatModel)
	if err != nil {
		return nil, err
	}
	return assist.NewReplier(provider, cfg.ChatAPIKey(provider), model)
}
