package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/cadencebot/cadence/internal/decode"
)

const (
	// DefaultAutoplayDelay is how long the player waits after an
	// entry-added notification before auto-starting from Stopped.
	DefaultAutoplayDelay = 2 * time.Second

	// advanceRetryDelay is the backoff after a transient queue fetch
	// failure. Fetch failures are expected while the next entry is still
	// resolving in the background.
	advanceRetryDelay = 100 * time.Millisecond
)

type Options struct {
	GuildID      string
	Queue        Queue
	StartProcess ProcessStarter
	NewEncoder   EncoderFactory

	// Transport may be nil at construction and bound later with Bind.
	Transport Transport

	// DefaultGain is the initial volume multiplier; 0 means unity.
	DefaultGain   float64
	SaveMedia     bool
	AutoplayDelay time.Duration

	// MeterWriter enables the display-only loudness meter when non-nil.
	MeterWriter io.Writer
}

// Player owns at most one live Session and is the sole mutator of its own
// state. All mutations happen on its home loop; see loop.go.
type Player struct {
	guildID       string
	queue         Queue
	startProcess  ProcessStarter
	newEncoder    EncoderFactory
	saveMedia     bool
	autoplayDelay time.Duration
	meterWriter   io.Writer

	// gain is shared by reference with the active session's volume
	// buffer and read on the audio path, hence atomic rather than
	// loop-owned.
	gain *atomic.Float64

	transportMu sync.Mutex
	transport   Transport
	monitorOnce sync.Once

	tasks chan func()
	dead  chan struct{}

	timersMu sync.Mutex
	timers   []*time.Timer

	listenersMu sync.Mutex
	listeners   map[Event][]EventHandler

	// advance is the advance-lock: only one pop-next-and-start operation
	// may be in flight at a time.
	advance chan struct{}

	// loop-owned fields, touched only from run()
	state   State
	session *Session
	current *Entry

	// gen counts explicit stops. An advance scheduled before a stop
	// carries the generation it was scheduled under and must not fire
	// once the generation has moved on.
	gen int
}

// errStaleAdvance marks an advance that lost to a later Stop or Kill.
var errStaleAdvance = errors.New("advance superseded")

func New(opts Options) (*Player, error) {
	if opts.Queue == nil {
		return nil, errors.New("player: queue required")
	}
	if opts.StartProcess == nil {
		return nil, errors.New("player: process starter required")
	}
	if opts.NewEncoder == nil {
		return nil, errors.New("player: encoder factory required")
	}
	gain := opts.DefaultGain
	if gain <= 0 {
		gain = 1.0
	}
	delay := opts.AutoplayDelay
	if delay == 0 {
		delay = DefaultAutoplayDelay
	}

	p := &Player{
		guildID:       opts.GuildID,
		queue:         opts.Queue,
		startProcess:  opts.StartProcess,
		newEncoder:    opts.NewEncoder,
		saveMedia:     opts.SaveMedia,
		autoplayDelay: delay,
		meterWriter:   opts.MeterWriter,
		gain:          atomic.NewFloat64(gain),
		tasks:         make(chan func(), 128),
		dead:          make(chan struct{}),
		listeners:     make(map[Event][]EventHandler),
		advance:       make(chan struct{}, 1),
		state:         StateStopped,
	}
	go p.run()

	opts.Queue.OnEntryAdded(p.onEntryAdded)
	if opts.Transport != nil {
		p.Bind(opts.Transport)
	}
	return p, nil
}

func (p *Player) GuildID() string { return p.guildID }

// Bind attaches (or replaces) the transport used for transmission and starts
// the health-check loop on first bind.
func (p *Player) Bind(t Transport) {
	p.transportMu.Lock()
	p.transport = t
	p.transportMu.Unlock()
	p.monitorOnce.Do(func() { go p.healthLoop() })
}

func (p *Player) boundTransport() Transport {
	p.transportMu.Lock()
	defer p.transportMu.Unlock()
	return p.transport
}

// Bound reports whether a transport is attached.
func (p *Player) Bound() bool { return p.boundTransport() != nil }

// Volume returns the current gain multiplier (1.0 = unity).
func (p *Player) Volume() float64 { return p.gain.Load() }

// SetVolume takes effect on the active session's next audio frame; the
// stored value is also reused as the initial gain of future sessions.
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	}
	p.gain.Store(v)
}

func (p *Player) State() State {
	var st State
	if err := p.do(func() error { st = p.state; return nil }); err != nil {
		return StateDead
	}
	return st
}

func (p *Player) CurrentEntry() *Entry {
	var e *Entry
	if err := p.do(func() error { e = p.current; return nil }); err != nil {
		return nil
	}
	return e
}

// Progress is the coarse position of the current session in seconds.
func (p *Player) Progress() int {
	var sec int
	_ = p.do(func() error {
		if p.session != nil {
			sec = p.session.Progress()
		}
		return nil
	})
	return sec
}

// Play starts playback: it resumes when paused and otherwise advances to the
// next queue entry. No-op on a dead player.
func (p *Player) Play() {
	p.post(func() { p.playTask(false, p.gen) })
}

// playTask runs on the home loop.
func (p *Player) playTask(cont bool, gen int) {
	switch p.state {
	case StateDead:
		return
	case StatePaused:
		_ = p.resumeTask()
		return
	}
	go p.advanceNext(cont, gen)
}

// advanceNext pops the next entry and starts a session for it. It runs on
// its own goroutine because the queue fetch and the process start block; all
// state mutations are posted back onto the home loop.
func (p *Player) advanceNext(cont bool, gen int) {
	select {
	case p.advance <- struct{}{}:
	case <-p.dead:
		return
	}
	defer func() { <-p.advance }()

	eligible := false
	if err := p.do(func() error {
		eligible = p.gen == gen &&
			(cont || p.state == StateStopped || p.state == StateWaiting)
		return nil
	}); err != nil || !eligible {
		return
	}

	entry, err := p.queue.NextEntry(context.Background())
	if err != nil {
		slog.Warn("failed to get next entry, retrying",
			"guildID", p.guildID, "err", err)
		_ = p.do(func() error {
			if p.state == StatePlaying {
				p.state = StateWaiting
			}
			return nil
		})
		p.callLater(advanceRetryDelay, func() { p.playTask(cont, gen) })
		return
	}
	if entry == nil {
		// nothing left to play
		p.post(p.stopTask)
		return
	}

	// in case there was a session, kill it
	_ = p.do(func() error { p.teardownSession(); return nil })

	input := entry.Filename
	if input == "" {
		input = entry.URL
	}
	slog.Debug("starting decode process", "guildID", p.guildID, "input", input)

	proc, err := p.startProcess(context.Background(), input)
	if err != nil {
		slog.Error("failed to start decode process",
			"guildID", p.guildID, "entry", entry.Title, "err", err)
		p.post(func() {
			p.emit(EventError, EventPayload{Player: p, Entry: entry, Err: err})
			p.playTask(true, gen)
		})
		return
	}
	enc, err := p.newEncoder()
	if err != nil {
		_ = proc.Stop()
		slog.Error("failed to create encoder", "guildID", p.guildID, "err", err)
		return
	}

	buf := NewVolumeBuffer(proc.Audio(), p.gain)
	if p.meterWriter != nil {
		buf.EnableMeter(p.meterWriter, defaultMeterW)
	}
	sup := decode.Supervise(proc.Diagnostics(), nil)
	sess := newSession(entry, proc, buf, sup, enc, p.boundTransport, p.sessionFinished)

	// commit; a late-arriving advance after stop or kill is a no-op
	if err := p.do(func() error {
		if p.state == StateDead {
			return ErrDead
		}
		if p.gen != gen {
			return errStaleAdvance
		}
		p.session = sess
		p.current = entry
		p.state = StatePlaying
		p.emit(EventPlay, EventPayload{Player: p, Entry: entry})
		return nil
	}); err != nil {
		_ = sess.Stop()
	}
}

// sessionFinished is called from the session's own goroutine, exactly once,
// after the session has fully torn down. It hands off to the home loop
// before touching shared state.
func (p *Player) sessionFinished(sess *Session, decodeErr error) {
	p.post(func() { p.finishTask(sess, decodeErr) })
}

// finishTask runs on the home loop.
func (p *Player) finishTask(sess *Session, decodeErr error) {
	wasCurrent := p.session == sess
	if wasCurrent {
		p.session = nil
		p.current = nil
	}
	entry := sess.Entry

	if decodeErr != nil {
		p.emit(EventError, EventPayload{Player: p, Entry: entry, Err: decodeErr})
	}

	if wasCurrent && (p.state == StatePlaying || p.state == StateWaiting) {
		go p.advanceNext(true, p.gen)
	}

	if !p.saveMedia && entry != nil && entry.Filename != "" && !entry.IsLive {
		if p.queue.HasFile(entry.Filename) {
			slog.Debug("skipping deletion, file still referenced in queue",
				"file", entry.Filename)
		} else {
			go deleteFile(entry.Filename)
		}
	}

	p.emit(EventFinished, EventPayload{Player: p, Entry: entry})
}

// Pause suspends the active session in place. Valid only from Playing;
// a no-op when already Paused.
func (p *Player) Pause() error {
	return p.do(func() error {
		switch p.state {
		case StatePlaying:
			p.state = StatePaused
			if p.session != nil {
				if err := p.session.Pause(); err != nil {
					slog.Warn("failed to pause decode process",
						"guildID", p.guildID, "err", err)
				}
			}
			p.emit(EventPause, EventPayload{Player: p, Entry: p.current})
			return nil
		case StatePaused:
			return nil
		default:
			return fmt.Errorf("cannot pause playback from state %s: %w",
				p.state, ErrInvalidTransition)
		}
	})
}

// Resume resumes a paused session. Valid only from Paused.
func (p *Player) Resume() error {
	return p.do(p.resumeTask)
}

// resumeTask runs on the home loop.
func (p *Player) resumeTask() error {
	if p.state != StatePaused {
		return fmt.Errorf("cannot resume playback from state %s: %w",
			p.state, ErrInvalidTransition)
	}
	if p.session != nil {
		if err := p.session.Resume(); err != nil {
			slog.Warn("failed to resume decode process",
				"guildID", p.guildID, "err", err)
		}
		p.state = StatePlaying
		p.emit(EventResume, EventPayload{Player: p, Entry: p.current})
		return nil
	}
	// the session died while paused; advance instead of resuming a dead
	// handle
	p.state = StatePlaying
	go p.advanceNext(true, p.gen)
	return nil
}

// Skip tears down the current session; its completion callback then
// naturally advances to the next entry.
func (p *Player) Skip() {
	p.post(func() {
		if p.session != nil {
			_ = p.session.Stop()
		}
	})
}

// Stop forces the player to Stopped and tears down any session.
func (p *Player) Stop() {
	p.post(p.stopTask)
}

// stopTask runs on the home loop. Bumping the generation invalidates any
// advance or autoplay scheduled before the stop.
func (p *Player) stopTask() {
	p.gen++
	p.state = StateStopped
	p.teardownSession()
	p.emit(EventStop, EventPayload{Player: p})
}

// Kill permanently shuts the player down: the queue is cleared, listeners
// and pending timers are discarded, any session is torn down. Terminal.
func (p *Player) Kill() {
	_ = p.do(func() error {
		if p.state == StateDead {
			return nil
		}
		p.gen++
		p.state = StateDead
		p.queue.Clear()
		p.clearListeners()
		p.teardownSession()
		p.stopTimers()
		close(p.dead)
		return nil
	})
}

// teardownSession runs on the home loop. Clearing the session reference
// first makes the finish callback treat it as stale, so teardown does not
// trigger advancement.
func (p *Player) teardownSession() {
	if p.session == nil {
		return
	}
	sess := p.session
	p.session = nil
	p.current = nil
	_ = sess.Stop()
}

func (p *Player) onEntryAdded(e *Entry) {
	p.post(func() {
		if p.state == StateStopped {
			gen := p.gen
			p.callLater(p.autoplayDelay, func() { p.playTask(false, gen) })
		}
		p.emit(EventEntryAdded, EventPayload{Player: p, Entry: e})
	})
}

// deleteFile removes an entry's backing file, retrying while the file is
// still held open elsewhere. Best effort: failures are logged, never raised.
func deleteFile(filename string) {
	for i := 0; i < 30; i++ {
		err := os.Remove(filename)
		if err == nil || errors.Is(err, os.ErrNotExist) {
			return
		}
		if errors.Is(err, os.ErrPermission) {
			time.Sleep(250 * time.Millisecond)
			continue
		}
		slog.Error("failed to delete file", "file", filename, "err", err)
		return
	}
	slog.Warn("could not delete file, giving up", "file", filename)
}
