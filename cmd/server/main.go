package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftwatch/backend/internal/config"
	"github.com/driftwatch/backend/internal/detect"
	"github.com/driftwatch/backend/internal/mock"
	"github.com/driftwatch/backend/internal/persist"
	"github.com/driftwatch/backend/internal/session"
	"github.com/driftwatch/backend/internal/vision"
	"github.com/driftwatch/backend/internal/voice"
	"github.com/driftwatch/backend/internal/ws"
)

func main() {
	mockMode := flag.Bool("mock", false, "Generate synthetic browser signals")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	voyage := session.NewContext()

	recorder, err := persist.NewFileRecorder(cfg.Persist.Dir)
	if err != nil {
		log.Fatalf("Failed to open event store: %v", err)
	}
	go recorder.Run(ctx)

	engine := detect.NewEngine(cfg, voyage, recorder)

	if cfg.Vision.APIKey != "" {
		classifier, err := vision.NewGeminiClassifier(ctx, cfg.Vision.APIKey, cfg.Vision.Model)
		if err != nil {
			log.Fatalf("Failed to init classifier: %v", err)
		}
		capturer, err := vision.NewExecCapturer(cfg.Vision.CaptureCommand, cfg.Vision.CameraCommand)
		if err != nil {
			log.Fatalf("Failed to init capture: %v", err)
		}
		engine.SetVision(capturer, classifier)
		log.Printf("Combined analysis enabled (model %s)", cfg.Vision.Model)
	} else {
		log.Println("No vision API key configured, combined analysis disabled")
	}

	if cfg.Voice.Enabled {
		engine.SetVoice(voice.NewExecVoice(cfg.Voice.SpeakCommand, cfg.Voice.ListenCommand))
		log.Println("Voice alerts enabled")
	}

	broadcaster := ws.NewBroadcaster(func() ws.SnapshotPayload {
		return ws.CurrentSnapshot(engine, voyage)
	}, cfg.Server.BroadcastThrottle, cfg.Server.SnapshotInterval)

	engine.SetNotify(func(snap detect.Snapshot) {
		payload := ws.SnapshotPayload{State: snap}
		if v, ok := voyage.Current(); ok {
			payload.Voyage = &v
		}
		broadcaster.QueueSnapshot(payload)
	})
	engine.SetAlertFunc(broadcaster.BroadcastAlert)
	engine.SetEventFunc(broadcaster.BroadcastEvent)

	go engine.Start(ctx)

	if err := config.Watch(ctx, *configPath, func(newCfg *config.Config) {
		engine.SetConfig(newCfg)
		log.Println("Configuration reloaded")
	}); err != nil {
		log.Printf("Config watch disabled: %v", err)
	}

	if *mockMode {
		log.Println("Starting in mock mode")
		gen := mock.NewGenerator(engine, 500*time.Millisecond)
		gen.Start(ctx)
	}

	server := ws.NewServer(cfg, engine, voyage, broadcaster, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)
	server.SetStatsProvider(recorder)

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
