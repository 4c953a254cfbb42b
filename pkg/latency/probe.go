package latency

import (
	"context"
	"math"
	"sync"
	"time"
)

// ProbeMode selects how a VolumeProbe reduces a PCM chunk to a level.
type ProbeMode int

const (
	// ModeRMS reads time-domain samples and computes a gain-scaled RMS.
	// Used for the local microphone.
	ModeRMS ProbeMode = iota
	// ModeSpectrum averages frequency-bin magnitudes. Used for the
	// remote/agent audio path.
	ModeSpectrum
)

// Spectrum analysis constants. The bin magnitudes are mapped onto a decibel
// window before averaging, mirroring the byte-frequency scale the display
// layer expects.
const (
	spectrumBins  = 32
	spectrumMinHz = 200.0
	spectrumMaxHz = 4000.0
	spectrumMinDb = -90.0
	spectrumMaxDb = -10.0
)

// staleTicks is how many ticks a fed chunk stays representative. Past that
// the feeder has gone quiet and the probe reads silence instead of
// re-measuring the last chunk forever.
const staleTicks = 4

// VolumeProbe converts a raw audio feed into a periodic 0-100 level signal.
// The audio callback pushes chunks via Feed; Run emits one EnergySample per
// tick until the context is cancelled. A probe that never receives data, or
// whose feeder stops, reports level 0, so "no data" can never read as a
// false positive.
type VolumeProbe struct {
	mode       ProbeMode
	gain       float64
	sampleRate int
	interval   time.Duration
	handler    func(EnergySample)

	mu      sync.Mutex
	latest  []byte
	fedAt   time.Time
	level   float64
	running bool

	now func() time.Time
}

// NewVolumeProbe creates a probe in the given mode. The handler is invoked
// from the probe's tick goroutine and must be bounded, fixed-cost work.
func NewVolumeProbe(mode ProbeMode, cfg Config, handler func(EnergySample)) *VolumeProbe {
	tickRate := cfg.TickRate
	if tickRate <= 0 {
		tickRate = 60
	}
	return &VolumeProbe{
		mode:       mode,
		gain:       cfg.GainFactor,
		sampleRate: cfg.SampleRate,
		interval:   time.Second / time.Duration(tickRate),
		handler:    handler,
		now:        time.Now,
	}
}

// Feed stores the most recent PCM chunk (16-bit little-endian mono). It is
// safe to call from the audio device callback; the chunk is copied.
func (p *VolumeProbe) Feed(chunk []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cap(p.latest) < len(chunk) {
		p.latest = make([]byte, len(chunk))
	}
	p.latest = p.latest[:len(chunk)]
	copy(p.latest, chunk)
	p.fedAt = p.now()
}

// Run drives the polling loop. It blocks until ctx is done and returns
// ErrProbeRunning if the probe is already running.
func (p *VolumeProbe) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrProbeRunning
	}
	p.running = true
	p.mu.Unlock()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick()
		}
	}
}

func (p *VolumeProbe) tick() {
	p.mu.Lock()
	chunk := p.latest
	if p.fedAt.IsZero() || p.now().Sub(p.fedAt) > time.Duration(staleTicks)*p.interval {
		chunk = nil
	}
	level := p.measure(chunk)
	p.level = level
	p.mu.Unlock()

	if p.handler != nil {
		p.handler(EnergySample{TimestampMs: p.now().UnixMilli(), Level: level})
	}
}

// LastLevel returns the most recently computed level. Useful for meters.
func (p *VolumeProbe) LastLevel() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *VolumeProbe) measure(chunk []byte) float64 {
	if len(chunk) < 2 {
		return 0
	}
	switch p.mode {
	case ModeSpectrum:
		return p.spectrumLevel(chunk)
	default:
		return p.rmsLevel(chunk)
	}
}

// rmsLevel computes RMS over the whole chunk in signed unit range, applies the
// fixed gain factor and clamps to [0,100].
func (p *VolumeProbe) rmsLevel(chunk []byte) float64 {
	var sum float64
	n := 0
	for i := 0; i < len(chunk)-1; i += 2 {
		sample := int16(chunk[i]) | (int16(chunk[i+1]) << 8)
		f := float64(sample) / 32768.0
		sum += f * f
		n++
	}
	if n == 0 {
		return 0
	}
	rms := math.Sqrt(sum / float64(n))
	level := rms * p.gain * 100
	if level > 100 {
		level = 100
	}
	return level
}

// spectrumLevel runs a Goertzel pass over a fixed set of bins and returns the
// arithmetic mean of the decibel-normalized magnitudes.
func (p *VolumeProbe) spectrumLevel(chunk []byte) float64 {
	samples := pcmToUnit(chunk)
	if len(samples) == 0 {
		return 0
	}

	step := (spectrumMaxHz - spectrumMinHz) / float64(spectrumBins-1)
	var total float64
	for b := 0; b < spectrumBins; b++ {
		freq := spectrumMinHz + float64(b)*step
		mag := goertzelMagnitude(samples, freq, float64(p.sampleRate))
		db := 20 * math.Log10(mag+1e-12)
		norm := (db - spectrumMinDb) / (spectrumMaxDb - spectrumMinDb)
		if norm < 0 {
			norm = 0
		} else if norm > 1 {
			norm = 1
		}
		total += norm
	}
	return total / spectrumBins * 100
}

// goertzelMagnitude evaluates the normalized magnitude of a single frequency
// bin. Cheaper than a full FFT for the handful of bins we care about.
func goertzelMagnitude(samples []float64, freq, sampleRate float64) float64 {
	w := 2 * math.Pi * freq / sampleRate
	coeff := 2 * math.Cos(w)

	var s1, s2 float64
	for _, x := range samples {
		s0 := x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2
	if power < 0 {
		power = 0
	}
	return math.Sqrt(power) / (float64(len(samples)) / 2)
}

// pcmToUnit converts 16-bit little-endian PCM to float64 samples in [-1, 1].
func pcmToUnit(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | (int16(data[i+1]) << 8)
		samples = append(samples, float64(sample)/32768.0)
	}
	return samples
}
