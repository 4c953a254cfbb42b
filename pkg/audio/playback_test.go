package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestPlaybackBufferBurstDetection(t *testing.T) {
	b := NewPlaybackBuffer(300 * time.Millisecond)
	now := time.Unix(100, 0)
	b.now = func() time.Time { return now }

	if !b.Push([]byte{1}) {
		t.Error("First chunk should start a burst")
	}

	now = now.Add(50 * time.Millisecond)
	if b.Push([]byte{2}) {
		t.Error("Chunk within the gap should not start a burst")
	}

	now = now.Add(301 * time.Millisecond)
	if !b.Push([]byte{3}) {
		t.Error("Chunk after the gap should start a new burst")
	}
}

func TestPlaybackBufferReadIntoZeroPads(t *testing.T) {
	b := NewPlaybackBuffer(300 * time.Millisecond)
	b.Push([]byte{1, 2, 3})

	out := []byte{9, 9, 9, 9, 9}
	n := b.ReadInto(out)
	if n != 3 {
		t.Errorf("Expected 3 bytes read, got %d", n)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 0, 0}) {
		t.Errorf("Expected zero-padded output, got %v", out)
	}
	if b.Buffered() != 0 {
		t.Errorf("Expected empty buffer, got %d", b.Buffered())
	}
}

func TestPlaybackBufferClear(t *testing.T) {
	b := NewPlaybackBuffer(300 * time.Millisecond)
	b.Push(make([]byte, 128))
	b.Clear()
	if b.Buffered() != 0 {
		t.Errorf("Expected empty buffer after Clear, got %d", b.Buffered())
	}
}
