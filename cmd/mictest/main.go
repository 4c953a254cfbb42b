// mictest records a few seconds from the default microphone with a live level
// meter, then writes the capture to a WAV file. Use it to verify the input
// device and pick a speech threshold before running the client.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/joho/godotenv"

	"github.com/echolab-ai/echometer/pkg/audio"
	"github.com/echolab-ai/echometer/pkg/latency"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Note: No .env file found, using system environment variables")
	}

	seconds := 5
	if raw := os.Getenv("MIC_TEST_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			seconds = v
		}
	}
	outPath := os.Getenv("MIC_TEST_FILE")
	if outPath == "" {
		outPath = "mic_test.wav"
	}

	cfg := latency.DefaultConfig()
	probe := latency.NewVolumeProbe(latency.ModeRMS, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := probe.Run(ctx); err != nil && err != context.Canceled {
			fmt.Printf("Note: level meter stopped: %v\n", err)
		}
	}()

	var capturedMu sync.Mutex
	var captured []byte

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		fmt.Printf("Error: audio context init failed: %v\n", err)
		os.Exit(1)
	}
	defer mctx.Uninit()

	onSamples := func(pOutput, pInput []byte, frameCount uint32) {
		if pInput == nil {
			return
		}
		probe.Feed(pInput)
		capturedMu.Lock()
		captured = append(captured, pInput...)
		capturedMu.Unlock()
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSamples,
	})
	if err != nil {
		fmt.Printf("Error: audio device init failed: %v\n", err)
		os.Exit(1)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		fmt.Printf("Error: audio device start failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Recording %ds at %dHz. Speak into the microphone...\n", seconds, cfg.SampleRate)
	fmt.Printf("Levels above %.0f count as speech.\n", cfg.SpeechThreshold)

	done := time.After(time.Duration(seconds) * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

recording:
	for {
		select {
		case <-done:
			break recording
		case <-ticker.C:
			level := probe.LastLevel()

			dots := int(level)
			if dots > 40 {
				dots = 40
			}
			meter := ""
			for i := 0; i < dots; i++ {
				meter += "|"
			}
			fmt.Printf("\r[MIC LEVEL: %-40s] %5.1f", meter, level)
		}
	}
	fmt.Println()

	capturedMu.Lock()
	pcm := append([]byte(nil), captured...)
	capturedMu.Unlock()

	wav := audio.EncodeWAV(pcm, cfg.SampleRate, cfg.Channels)
	if err := os.WriteFile(outPath, wav, 0o644); err != nil {
		fmt.Printf("Error: writing %s: %v\n", outPath, err)
		os.Exit(1)
	}

	fmt.Printf("Captured %s of audio to %s\n",
		audio.PCMDuration(pcm, cfg.SampleRate, cfg.Channels).Round(time.Millisecond), outPath)
}
