package player

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

const (
	probeInterval    = time.Second
	reconnectSettle  = 3 * time.Second
	reconnectTimeout = 10 * time.Second
)

// healthLoop probes the bound transport until the player is dead, rebuilding
// the connection when the probe reports it terminal.
func (p *Player) healthLoop() {
	slog.Debug("starting transport health loop", "guildID", p.guildID)
	for {
		wait := p.probeTransport()
		select {
		case <-p.dead:
			return
		case <-time.After(wait):
		}
	}
}

// probeTransport holds the transport binding for the whole probe, including
// any reconnect, and returns how long to wait before the next one.
func (p *Player) probeTransport() time.Duration {
	p.transportMu.Lock()
	defer p.transportMu.Unlock()

	t := p.transport
	if t == nil {
		return probeInterval
	}

	err := t.Alive()
	switch {
	case err == nil:
		return probeInterval
	case errors.Is(err, ErrInvalidState):
		slog.Debug("transport in invalid state, reconnecting", "guildID", p.guildID)
		ctx, cancel := context.WithTimeout(context.Background(), reconnectTimeout)
		if rerr := t.Reconnect(ctx); rerr != nil {
			slog.Error("transport reconnect failed", "guildID", p.guildID, "err", rerr)
		}
		cancel()
		// let the new connection settle
		return reconnectSettle
	default:
		slog.Error("transport health check failed", "guildID", p.guildID, "err", err)
		return probeInterval
	}
}
