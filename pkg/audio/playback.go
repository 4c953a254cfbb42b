package audio

import (
	"sync"
	"time"
)

// PlaybackBuffer queues agent audio between the network reader and the output
// device callback. Push reports when a chunk opens a new utterance, which is
// what the media-lifecycle echo trigger keys on: the first chunk ever, or the
// first after a silence gap longer than burstGap.
type PlaybackBuffer struct {
	mu         sync.Mutex
	pending    []byte
	lastPushAt time.Time
	burstGap   time.Duration
	now        func() time.Time
}

func NewPlaybackBuffer(burstGap time.Duration) *PlaybackBuffer {
	return &PlaybackBuffer{burstGap: burstGap, now: time.Now}
}

// Push appends a chunk and reports whether it begins a new playback burst.
func (b *PlaybackBuffer) Push(chunk []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	newBurst := b.lastPushAt.IsZero() || now.Sub(b.lastPushAt) > b.burstGap
	b.lastPushAt = now
	b.pending = append(b.pending, chunk...)
	return newBurst
}

// ReadInto fills the device output frame from the queue, zero-padding
// whatever the queue cannot cover. Safe to call from the audio callback.
func (b *PlaybackBuffer) ReadInto(out []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := copy(out, b.pending)
	b.pending = b.pending[n:]
	for i := n; i < len(out); i++ {
		out[i] = 0
	}
	return n
}

// Buffered returns the number of queued bytes not yet played.
func (b *PlaybackBuffer) Buffered() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Clear drops queued audio, e.g. when the session resets.
func (b *PlaybackBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}
