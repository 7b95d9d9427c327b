package player

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

// brokenTransport reports a terminal connection until reconnected.
type brokenTransport struct {
	fakeTransport
	reconnects atomic.Int64
	healthy    atomic.Bool
}

func (b *brokenTransport) Alive() error {
	if b.healthy.Load() {
		return nil
	}
	return fmt.Errorf("probe: %w", ErrInvalidState)
}

func (b *brokenTransport) Reconnect(ctx context.Context) error {
	b.reconnects.Inc()
	b.healthy.Store(true)
	return nil
}

func TestMonitorReconnectsTerminalTransport(t *testing.T) {
	tr := &brokenTransport{}
	f := &fakeFactory{audio: finiteAudio(1)}
	p, err := New(Options{
		GuildID:      "g1",
		Queue:        &fakeQueue{},
		StartProcess: f.start,
		NewEncoder:   func() (Encoder, error) { return passEncoder{}, nil },
		Transport:    tr,
	})
	require.NoError(t, err)
	t.Cleanup(p.Kill)

	assert.Eventually(t, func() bool { return tr.reconnects.Load() == 1 },
		3*time.Second, 20*time.Millisecond)

	// once healthy, no further reconnect attempts
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, int64(1), tr.reconnects.Load())
}

func TestMonitorIgnoresTransientErrors(t *testing.T) {
	tr := &flappingTransport{}
	f := &fakeFactory{audio: finiteAudio(1)}
	p, err := New(Options{
		GuildID:      "g1",
		Queue:        &fakeQueue{},
		StartProcess: f.start,
		NewEncoder:   func() (Encoder, error) { return passEncoder{}, nil },
		Transport:    tr,
	})
	require.NoError(t, err)
	t.Cleanup(p.Kill)

	time.Sleep(1500 * time.Millisecond)
	assert.Zero(t, tr.reconnects.Load(), "transient errors must not trigger reconnects")
}

type flappingTransport struct {
	fakeTransport
	reconnects atomic.Int64
}

func (f *flappingTransport) Alive() error {
	return fmt.Errorf("temporary hiccup")
}

func (f *flappingTransport) Reconnect(ctx context.Context) error {
	f.reconnects.Inc()
	return nil
}
