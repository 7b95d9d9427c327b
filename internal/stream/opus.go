package stream

import (
	"encoding/binary"
	"fmt"

	"layeh.com/gopus"

	"github.com/cadencebot/cadence/internal/player"
)

const (
	frameSamples = 960 // 20ms at 48kHz
	channels     = 2
	bitrate      = 160000
	maxOpusBytes = 4000
)

// OpusEncoder turns 20ms signed 16-bit little-endian PCM frames into Opus
// packets sized for a Discord voice connection.
type OpusEncoder struct {
	enc *gopus.Encoder
	pcm []int16
}

func NewOpusEncoder() (player.Encoder, error) {
	enc, err := gopus.NewEncoder(48000, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	enc.SetBitrate(bitrate)
	return &OpusEncoder{
		enc: enc,
		pcm: make([]int16, frameSamples*channels),
	}, nil
}

func (e *OpusEncoder) EncodeFrame(frame []byte) ([]byte, error) {
	if len(frame) != frameSamples*channels*2 {
		return nil, fmt.Errorf("encode frame: want %d bytes, got %d",
			frameSamples*channels*2, len(frame))
	}
	for i := range e.pcm {
		e.pcm[i] = int16(binary.LittleEndian.Uint16(frame[i*2:]))
	}
	pkt, err := e.enc.Encode(e.pcm, frameSamples, maxOpusBytes)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return pkt, nil
}

// Close releases nothing today; gopus encoders are garbage collected. Kept
// so the session can tear encoders down uniformly.
func (e *OpusEncoder) Close() {}
