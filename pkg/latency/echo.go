package latency

// EchoTrigger identifies which of the redundant echo signals fired.
type EchoTrigger string

const (
	// TriggerPlayback fires when the remote audio path starts producing
	// sound (media lifecycle).
	TriggerPlayback EchoTrigger = "playback"
	// TriggerEnergy fires when the remote spectrum average crosses the
	// threshold.
	TriggerEnergy EchoTrigger = "energy"
)

// EchoActivityDetector watches the agent's audio for response onset. Relying
// on a single signal is fragile across devices, so two independent triggers
// race and the first one wins. The detector itself is stateless: the turn
// state machine's check-and-set on the open window is what makes "first wins"
// atomic, so both triggers firing in the same tick cannot double-record.
type EchoActivityDetector struct {
	threshold float64
	fire      func(atMs int64, trigger EchoTrigger)
}

func NewEchoActivityDetector(threshold float64, fire func(atMs int64, trigger EchoTrigger)) *EchoActivityDetector {
	return &EchoActivityDetector{threshold: threshold, fire: fire}
}

// OnSample consumes one remote probe reading.
func (d *EchoActivityDetector) OnSample(s EnergySample) {
	if s.Level > d.threshold {
		d.fire(s.TimestampMs, TriggerEnergy)
	}
}

// PlaybackStarted signals that the remote audio element began producing
// sound.
func (d *EchoActivityDetector) PlaybackStarted(atMs int64) {
	d.fire(atMs, TriggerPlayback)
}
