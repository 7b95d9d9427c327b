package player

import (
	"context"
	"errors"
	"io"
	"time"
)

const (
	frameSamples  = 960 // 20 ms at 48 kHz
	frameChannels = 2

	// FrameBytes is one 20 ms interleaved s16le stereo frame.
	FrameBytes = frameSamples * frameChannels * 2

	frameDuration = 20 * time.Millisecond

	// MaxGain caps the volume multiplier to bound clipping distortion.
	MaxGain = 2.0
)

var (
	// ErrInvalidTransition reports a transport-control call that is not
	// valid from the player's current state.
	ErrInvalidTransition = errors.New("invalid player state transition")

	// ErrInvalidState is returned by a transport liveness probe when the
	// underlying connection is terminal and must be rebuilt.
	ErrInvalidState = errors.New("transport in invalid state")

	// ErrEntryPending is a transient queue fetch failure: the next entry
	// exists but its backing media is still resolving.
	ErrEntryPending = errors.New("next entry still resolving")

	// ErrDead reports an operation on a killed player.
	ErrDead = errors.New("player is dead")
)

// Entry is one queued unit of media, identified by a stable URL and backed
// by a local file once resolved.
type Entry struct {
	Title       string `json:"title"`
	Artist      string `json:"artist,omitempty"`
	URL         string `json:"url"`
	Filename    string `json:"filename,omitempty"`
	Duration    int    `json:"duration,omitempty"` // seconds
	IsLive      bool   `json:"is_live,omitempty"`
	Thumbnail   string `json:"thumbnail,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// Queue supplies entries to the player. NextEntry pops the front entry,
// returning (nil, nil) when the queue is empty and an error (ErrEntryPending
// or any transient failure) when the front entry cannot be produced yet.
type Queue interface {
	NextEntry(ctx context.Context) (*Entry, error)
	Entries() []*Entry
	PushFront(e *Entry)
	// Append adds an entry without firing entry-added notifications.
	Append(e *Entry)
	Clear()
	OnEntryAdded(fn func(e *Entry))
	// HasFile reports whether any queued entry references the given
	// backing file.
	HasFile(filename string) bool
}

// Process is a running decode process.
type Process interface {
	Audio() io.Reader
	Diagnostics() io.Reader
	Pause() error
	Resume() error
	Stop() error
	// Done is closed when the process exits, normally or not.
	Done() <-chan struct{}
}

// ProcessStarter launches a decode process for a media input.
type ProcessStarter func(ctx context.Context, input string) (Process, error)

// Encoder turns one PCM frame into one transport packet.
type Encoder interface {
	EncodeFrame(pcm []byte) ([]byte, error)
	Close()
}

// EncoderFactory builds a fresh encoder per session.
type EncoderFactory func() (Encoder, error)

// Transport transmits encoded audio and exposes the liveness probe used by
// the health monitor. Alive must wrap ErrInvalidState when the connection is
// terminal.
type Transport interface {
	Ready() bool
	Speaking(on bool) error
	SendOpus(ctx context.Context, pkt []byte) error
	Alive() error
	Reconnect(ctx context.Context) error
}
