package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/echolab-ai/echometer/internal/logging"
	"github.com/echolab-ai/echometer/internal/metrics"
	"github.com/echolab-ai/echometer/internal/statsapi"
	"github.com/echolab-ai/echometer/pkg/audio"
	"github.com/echolab-ai/echometer/pkg/latency"
	"github.com/echolab-ai/echometer/pkg/transport"
)

// playbackBurstGap is the silence gap that separates two agent utterances on
// the playback path.
const playbackBurstGap = 300 * time.Millisecond

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: No .env file found, using system environment variables")
	}

	logger := logging.Init()
	defer logger.Sync()

	sessionURL := os.Getenv("ECHOMETER_SESSION_URL")
	if sessionURL == "" {
		logger.Fatal("ECHOMETER_SESSION_URL must be set")
	}
	token := os.Getenv("ECHOMETER_TOKEN")

	statsAddr := os.Getenv("STATS_ADDR")
	if statsAddr == "" {
		statsAddr = ":8090"
	}

	cfg := latency.DefaultConfig()
	cfg.SpeechThreshold = envFloat("SPEECH_THRESHOLD", cfg.SpeechThreshold)
	cfg.EchoThreshold = envFloat("ECHO_THRESHOLD", cfg.EchoThreshold)
	cfg.GainFactor = envFloat("MIC_GAIN", cfg.GainFactor)
	cfg.EchoTimeout = envDuration("ECHO_TIMEOUT", cfg.EchoTimeout)

	engine := latency.NewEngine(cfg, logging.NewEngineLogger(logger))
	defer engine.Close()

	fmt.Printf("Configured: session=%s | speech threshold=%.1f | echo timeout=%s\n",
		sessionURL, cfg.SpeechThreshold, cfg.EchoTimeout)
	fmt.Printf("Session: %s\n", engine.SessionID())
	fmt.Println("Latency meter started. Speak and wait for the agent's reply.")
	fmt.Println("Press Ctrl+C to exit")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	playback := audio.NewPlaybackBuffer(playbackBurstGap)

	ch, err := transport.Dial(ctx, transport.Config{
		URL:   sessionURL,
		Token: token,
	}, transport.Callbacks{
		OnAudio: func(chunk []byte) {
			if playback.Push(chunk) {
				engine.PlaybackStarted()
			}
			engine.RemoteProbe().Feed(chunk)
		},
		OnControl: func(raw []byte) {
			if err := engine.HandleReport(raw); err != nil {
				metrics.ReportErrorsTotal.Inc()
			}
		},
		OnQuality: func(label string) {
			fmt.Printf("\r\033[K[NET] Connection quality: %s\n", label)
		},
	}, logger)
	if err != nil {
		logger.Fatal("session dial failed", zap.Error(err))
	}
	defer ch.Close()

	server := statsapi.New(statsAddr, engine, ch.Quality, logger)
	server.Start()

	// Audio device setup (malgo)
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		logger.Fatal("audio context init failed", zap.Error(err))
	}
	defer mctx.Uninit()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput != nil {
			engine.LocalProbe().Feed(pInput)
		}
		if pOutput != nil {
			playback.ReadInto(pOutput)
		}
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Duplex)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1 // Better compatibility on some systems

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		logger.Fatal("audio device init failed", zap.Error(err))
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		logger.Fatal("audio device start failed", zap.Error(err))
	}

	if err := engine.Start(ctx); err != nil {
		logger.Fatal("engine start failed", zap.Error(err))
	}

	go func() {
		if err := ch.Run(ctx); err != nil {
			logger.Error("session channel dropped", zap.Error(err))
		}
		// Measurements never survive a dropped session.
		engine.ResetSession()
		playback.Clear()
		cancel()
	}()

	go consumeEvents(engine)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	fmt.Printf("\nShutting down...\n")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("stats server shutdown", zap.Error(err))
	}
}

// consumeEvents renders the terminal display and keeps the prometheus
// collectors current. The engine drops events if this falls behind, so
// everything here stays cheap.
func consumeEvents(engine *latency.Engine) {
	cfg := engine.Config()
	for event := range engine.Events() {
		switch event.Type {
		case latency.UserSpeaking:
			metrics.TurnsStartedTotal.Inc()
			fmt.Printf("\r\033[K[USER] Speaking...\n")
		case latency.AwaitingResponse:
			fmt.Printf("\r\033[K[TURN] Waiting for the agent...\n")
		case latency.AgentProcessing:
			fmt.Printf("\r\033[K[AGENT] Processing...\n")
		case latency.EchoDetected:
			fmt.Printf("\r\033[K[AGENT] Response audio detected (%v)\n", event.Data)
		case latency.TurnTimedOut:
			metrics.TurnsTimedOutTotal.Inc()
			fmt.Printf("\r\033[K[TURN] No response within %s\n", cfg.EchoTimeout)
		case latency.MeasurementRecorded:
			m, ok := event.Data.(latency.Measurement)
			if !ok {
				continue
			}
			metrics.MeasurementsTotal.WithLabelValues(string(m.Source)).Inc()
			metrics.TurnLatency.WithLabelValues(string(m.Source)).Observe(m.ValueMs)
			metrics.HistorySize.Set(float64(len(engine.History())))
			if cur, ok := engine.Current(); ok {
				metrics.CurrentLatencyMs.Set(cur.ValueMs)
			}

			stats := engine.Snapshot()
			fmt.Printf("\r\033[K[LATENCY] %.0fms (%s, %s) | avg %.0fms over %d\n",
				m.ValueMs, m.Source, cfg.QualityLabel(m.ValueMs),
				stats.AverageMs, stats.Count)
		case latency.ErrorEvent:
			fmt.Printf("\r\033[K[ERROR] %v\n", event.Data)
		}
	}
}

func envFloat(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		fmt.Printf("Ignoring invalid %s=%q\n", key, raw)
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		fmt.Printf("Ignoring invalid %s=%q\n", key, raw)
		return def
	}
	return v
}
