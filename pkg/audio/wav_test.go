package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAV(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav := EncodeWAV(pcm, 44100, 1)

	if !bytes.HasPrefix(wav, []byte("RIFF")) {
		t.Errorf("Expected RIFF prefix")
	}

	if !bytes.Contains(wav, []byte("WAVE")) {
		t.Errorf("Expected WAVE format identifier")
	}

	expectedLen := 44 + len(pcm)
	if len(wav) != expectedLen {
		t.Errorf("Expected length %d, got %d", expectedLen, len(wav))
	}

	gotRate := binary.LittleEndian.Uint32(wav[24:28])
	if gotRate != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", gotRate)
	}

	gotChannels := binary.LittleEndian.Uint16(wav[22:24])
	if gotChannels != 1 {
		t.Errorf("Expected 1 channel, got %d", gotChannels)
	}
}

func TestEncodeWAVStereoByteRate(t *testing.T) {
	wav := EncodeWAV(make([]byte, 8), 16000, 2)

	gotByteRate := binary.LittleEndian.Uint32(wav[28:32])
	if gotByteRate != 64000 {
		t.Errorf("Expected byte rate 64000, got %d", gotByteRate)
	}
}

func TestPCMDuration(t *testing.T) {
	// One second of mono 16-bit audio at 16kHz is 32000 bytes.
	d := PCMDuration(make([]byte, 32000), 16000, 1)
	if d != time.Second {
		t.Errorf("Expected 1s, got %v", d)
	}

	if got := PCMDuration(nil, 0, 0); got != 0 {
		t.Errorf("Expected 0 for invalid format, got %v", got)
	}
}
