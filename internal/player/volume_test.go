package player

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func pcmFrame(sample int16) []byte {
	buf := make([]byte, FrameBytes)
	for i := 0; i+1 < len(buf); i += 2 {
		binary.LittleEndian.PutUint16(buf[i:], uint16(sample))
	}
	return buf
}

func readAllFrames(t *testing.T, b *VolumeBuffer) []byte {
	t.Helper()
	var out []byte
	frame := make([]byte, FrameBytes)
	for {
		n, err := b.ReadFrame(frame)
		out = append(out, frame[:n]...)
		if err != nil {
			require.Contains(t, []error{io.EOF, io.ErrUnexpectedEOF}, err)
			return out
		}
	}
}

func TestVolumeBufferUnityLeavesBytesUntouched(t *testing.T) {
	src := pcmFrame(1000)
	b := NewVolumeBuffer(bytes.NewReader(src), atomic.NewFloat64(1.0))
	out := readAllFrames(t, b)
	assert.Equal(t, src, out)
}

func TestVolumeBufferHalvesAmplitude(t *testing.T) {
	b := NewVolumeBuffer(bytes.NewReader(pcmFrame(1000)), atomic.NewFloat64(0.5))
	out := readAllFrames(t, b)
	require.Len(t, out, FrameBytes)
	got := int16(binary.LittleEndian.Uint16(out))
	assert.Equal(t, int16(500), got)
}

func TestVolumeBufferClampsGainAtCeiling(t *testing.T) {
	// a gain of 10 must behave like the 2.0 ceiling
	b := NewVolumeBuffer(bytes.NewReader(pcmFrame(1000)), atomic.NewFloat64(10))
	out := readAllFrames(t, b)
	got := int16(binary.LittleEndian.Uint16(out))
	assert.Equal(t, int16(2000), got)
}

func TestVolumeBufferClipsAtInt16Range(t *testing.T) {
	b := NewVolumeBuffer(bytes.NewReader(pcmFrame(30000)), atomic.NewFloat64(2))
	out := readAllFrames(t, b)
	got := int16(binary.LittleEndian.Uint16(out))
	assert.Equal(t, int16(32767), got)
}

func TestVolumeBufferGainChangeAppliesNextFrame(t *testing.T) {
	src := append(pcmFrame(1000), pcmFrame(1000)...)
	gain := atomic.NewFloat64(1.0)
	b := NewVolumeBuffer(bytes.NewReader(src), gain)

	frame := make([]byte, FrameBytes)
	_, err := b.ReadFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, int16(1000), int16(binary.LittleEndian.Uint16(frame)))

	gain.Store(0.5)
	_, err = b.ReadFrame(frame)
	require.NoError(t, err)
	assert.Equal(t, int16(500), int16(binary.LittleEndian.Uint16(frame)))
}

func TestVolumeBufferCountsFrames(t *testing.T) {
	src := bytes.Repeat(pcmFrame(100), 5)
	b := NewVolumeBuffer(bytes.NewReader(src), atomic.NewFloat64(1.0))
	readAllFrames(t, b)
	assert.Equal(t, int64(5), b.Frames())
}

func TestVolumeBufferShortFinalFrame(t *testing.T) {
	src := append(pcmFrame(1000), pcmFrame(1000)[:100]...)
	b := NewVolumeBuffer(bytes.NewReader(src), atomic.NewFloat64(0.5))

	frame := make([]byte, FrameBytes)
	_, err := b.ReadFrame(frame)
	require.NoError(t, err)

	n, err := b.ReadFrame(frame)
	assert.Equal(t, 100, n)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	// the partial frame is still scaled
	assert.Equal(t, int16(500), int16(binary.LittleEndian.Uint16(frame)))
}

func TestVolumeBufferMeterWrites(t *testing.T) {
	var sb strings.Builder
	src := bytes.Repeat(pcmFrame(1000), 4)
	b := NewVolumeBuffer(bytes.NewReader(src), atomic.NewFloat64(1.0))
	b.EnableMeter(&sb, 40)
	readAllFrames(t, b)
	assert.Contains(t, sb.String(), "avg rms:")
	assert.Contains(t, sb.String(), "\r")
}
