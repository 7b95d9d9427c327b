package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/cadencebot/cadence/internal/player"
)

const sendTimeout = 200 * time.Millisecond

// Voice adapts a discordgo voice connection to the player's transport
// interface. It remembers which channel it joined so the health monitor can
// rebuild a dropped connection in place.
type Voice struct {
	session *discordgo.Session

	mu        sync.Mutex
	guildID   string
	channelID string
	vc        *discordgo.VoiceConnection
}

func NewVoice(session *discordgo.Session, guildID string) *Voice {
	return &Voice{session: session, guildID: guildID}
}

// Join connects to the given voice channel, replacing any previous
// connection.
func (v *Voice) Join(ctx context.Context, channelID string) error {
	v.mu.Lock()
	if v.vc != nil && v.channelID == channelID && v.vc.Ready {
		v.mu.Unlock()
		return nil
	}
	old := v.vc
	v.vc = nil
	v.mu.Unlock()

	if old != nil {
		_ = safeDisconnect(old)
	}

	vc, err := v.joinWithContext(ctx, channelID)
	if err != nil {
		return err
	}

	// discordgo panics on Close when these are nil
	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	v.mu.Lock()
	v.vc = vc
	v.channelID = channelID
	v.mu.Unlock()
	return nil
}

type joinResult struct {
	vc  *discordgo.VoiceConnection
	err error
}

// joinWithContext bounds ChannelVoiceJoin, which blocks on the gateway
// handshake with no context of its own, by ctx. A join that completes after
// the deadline is torn down again so the connection does not leak.
func (v *Voice) joinWithContext(ctx context.Context, channelID string) (*discordgo.VoiceConnection, error) {
	res := make(chan joinResult, 1)
	go func() {
		vc, err := v.session.ChannelVoiceJoin(v.guildID, channelID, false, true)
		res <- joinResult{vc: vc, err: err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("join voice channel: %w", r.err)
		}
		return r.vc, nil
	case <-ctx.Done():
		go func() {
			if r := <-res; r.err == nil && r.vc != nil {
				_ = safeDisconnect(r.vc)
			}
		}()
		return nil, fmt.Errorf("join voice channel: %w", ctx.Err())
	}
}

// Leave disconnects and forgets the channel.
func (v *Voice) Leave() {
	v.mu.Lock()
	vc := v.vc
	v.vc = nil
	v.channelID = ""
	v.mu.Unlock()
	if vc != nil {
		_ = safeDisconnect(vc)
	}
}

// ChannelID returns the currently joined channel, if any.
func (v *Voice) ChannelID() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.channelID
}

func (v *Voice) conn() *discordgo.VoiceConnection {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vc
}

// Ready reports whether the connection can carry audio right now.
func (v *Voice) Ready() bool {
	vc := v.conn()
	return vc != nil && vc.Ready
}

func (v *Voice) Speaking(on bool) error {
	vc := v.conn()
	if vc == nil {
		return fmt.Errorf("speaking: %w", player.ErrInvalidState)
	}
	return vc.Speaking(on)
}

// SendOpus hands one packet to the connection's send channel. A full channel
// drops the packet after a short timeout rather than stalling the pacer.
func (v *Voice) SendOpus(ctx context.Context, pkt []byte) error {
	vc := v.conn()
	if vc == nil || !vc.Ready {
		return fmt.Errorf("send opus: %w", player.ErrInvalidState)
	}
	select {
	case vc.OpusSend <- pkt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(sendTimeout):
		return fmt.Errorf("send opus: channel full")
	}
}

// Alive reports transport health. ErrInvalidState means the connection is
// terminal and needs a reconnect; other errors are transient.
func (v *Voice) Alive() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.channelID == "" {
		// not joined anywhere; nothing to monitor
		return nil
	}
	if v.vc == nil {
		return fmt.Errorf("no voice connection: %w", player.ErrInvalidState)
	}
	if !v.vc.Ready {
		return fmt.Errorf("voice connection not ready: %w", player.ErrInvalidState)
	}
	return nil
}

// Reconnect tears down the current connection and rejoins the remembered
// channel.
func (v *Voice) Reconnect(ctx context.Context) error {
	v.mu.Lock()
	channelID := v.channelID
	vc := v.vc
	v.vc = nil
	v.mu.Unlock()

	if channelID == "" {
		return fmt.Errorf("reconnect: no channel to rejoin")
	}
	if vc != nil {
		_ = safeDisconnect(vc)
	}
	return v.Join(ctx, channelID)
}

// safeDisconnect shuts a voice connection down without letting discordgo's
// internal Close panic propagate.
func safeDisconnect(vc *discordgo.VoiceConnection) error {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("voice disconnect panic recovered", "panic", r)
		}
	}()

	if vc.OpusSend == nil {
		vc.OpusSend = make(chan []byte, 2)
	}
	if vc.OpusRecv == nil {
		vc.OpusRecv = make(chan *discordgo.Packet, 2)
	}

	_ = vc.Speaking(false)

	// let pending sends drain
	time.Sleep(150 * time.Millisecond)

	return vc.Disconnect()
}
