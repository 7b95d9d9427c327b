package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"go.uber.org/atomic"
)

const (
	rmsWindow     = 90 // rolling loudness samples kept for the meter
	meterSkip     = 2  // compute loudness every meterSkip-th frame
	defaultMeterW = 80
)

// VolumeBuffer wraps a raw PCM frame source and rescales every frame it
// reads by a shared gain factor. The gain is read per frame, so a write from
// the control path takes effect on the very next frame. Frame length and
// sample format are never altered, only amplitude.
type VolumeBuffer struct {
	src    io.Reader
	gain   *atomic.Float64
	frames *atomic.Int64

	draw   bool
	meter  io.Writer
	meterW int
	rms    []float64
}

func NewVolumeBuffer(src io.Reader, gain *atomic.Float64) *VolumeBuffer {
	return &VolumeBuffer{
		src:    src,
		gain:   gain,
		frames: atomic.NewInt64(0),
		rms:    []float64{2048},
	}
}

// EnableMeter turns on the display-only loudness meter, written to w as a
// carriage-returned text bar.
func (b *VolumeBuffer) EnableMeter(w io.Writer, width int) {
	if width <= 0 {
		width = defaultMeterW
	}
	b.draw = true
	b.meter = w
	b.meterW = width
}

// Frames reports how many frames have been read so far.
func (b *VolumeBuffer) Frames() int64 { return b.frames.Load() }

func (b *VolumeBuffer) Read(p []byte) (int, error) { return b.ReadFrame(p) }

// ReadFrame reads one frame from the underlying source into frame and
// rescales it in place. A partial frame at end of stream is still scaled and
// returned along with the read error.
func (b *VolumeBuffer) ReadFrame(frame []byte) (int, error) {
	n, err := io.ReadFull(b.src, frame)
	if n == 0 {
		return 0, err
	}
	count := b.frames.Inc()

	if g := b.gain.Load(); g != 1.0 {
		scaleS16LE(frame[:n], math.Min(g, MaxGain))
	}

	if b.draw && count%meterSkip == 0 {
		// sampled every meterSkip-th frame to keep the meter off the hot path
		b.observe(frame[:n])
	}
	return n, err
}

func scaleS16LE(buf []byte, mult float64) {
	for i := 0; i+1 < len(buf); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(buf[i:]))) * mult
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(buf[i:], uint16(int16(v)))
	}
}

func rmsS16LE(buf []byte) float64 {
	var sum float64
	cnt := 0
	for i := 0; i+1 < len(buf); i += 2 {
		v := float64(int16(binary.LittleEndian.Uint16(buf[i:])))
		sum += v * v
		cnt++
	}
	if cnt == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(cnt))
}

func (b *VolumeBuffer) observe(frame []byte) {
	cur := rmsS16LE(frame)
	b.rms = append(b.rms, cur)
	if len(b.rms) > rmsWindow {
		b.rms = b.rms[len(b.rms)-rmsWindow:]
	}

	var sum, max float64
	for _, v := range b.rms {
		sum += v
		if v > max {
			max = v
		}
	}
	avg := sum / float64(len(b.rms))
	text := fmt.Sprintf("avg rms: %.2f, max rms: %.2f ", avg, max)
	b.printMeter(cur/math.Max(1, max), text)
}

// printMeter draws a proportional bar scaled against the rolling maximum.
func (b *VolumeBuffer) printMeter(perc float64, text string) {
	if b.meter == nil {
		return
	}
	bar := int(float64(b.meterW-len(text))*perc) - 1
	if bar < 0 {
		bar = 0
	}
	out := text + strings.Repeat("#", bar)
	if pad := b.meterW - 1 - len(out); pad > 0 {
		out += strings.Repeat(" ", pad)
	}
	fmt.Fprint(b.meter, out+"\r")
}
