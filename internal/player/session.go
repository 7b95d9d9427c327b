package player

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/cadencebot/cadence/internal/decode"
)

// Session binds one queue entry to one decode process, its volume buffer and
// its diagnostic supervisor. The finish callback fires exactly once, and only
// after the process has exited and the diagnostic stream is fully drained.
type Session struct {
	Entry *Entry

	proc      Process
	buf       *VolumeBuffer
	sup       *decode.Supervisor
	enc       Encoder
	transport func() Transport

	quit     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	pauseMu sync.Mutex
	paused  bool
	gate    chan struct{}

	onFinish func(s *Session, decodeErr error)
}

func newSession(
	entry *Entry,
	proc Process,
	buf *VolumeBuffer,
	sup *decode.Supervisor,
	enc Encoder,
	transport func() Transport,
	onFinish func(*Session, error),
) *Session {
	s := &Session{
		Entry:     entry,
		proc:      proc,
		buf:       buf,
		sup:       sup,
		enc:       enc,
		transport: transport,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		onFinish:  onFinish,
	}
	go s.pump()
	return s
}

func (s *Session) Frames() int64 { return s.buf.Frames() }

// Progress is the coarse position in seconds derived from the frame counter.
// It is an approximation, not a byte-accurate resume position.
func (s *Session) Progress() int {
	return int(math.Round(float64(s.Frames()) * frameDuration.Seconds()))
}

// Pause suspends the decode process and the send loop in place.
func (s *Session) Pause() error {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if s.paused {
		return nil
	}
	s.paused = true
	s.gate = make(chan struct{})
	return s.proc.Pause()
}

func (s *Session) Resume() error {
	s.pauseMu.Lock()
	defer s.pauseMu.Unlock()
	if !s.paused {
		return nil
	}
	s.paused = false
	close(s.gate)
	return s.proc.Resume()
}

// Stop tears the session down. Completion is still delivered through the
// finish callback once the process exit is observed.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() { close(s.quit) })
	return s.proc.Stop()
}

// Done is closed once the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) pump() {
	defer func() {
		_ = s.Stop()
		<-s.proc.Done()
		decodeErr := s.sup.Wait()
		s.enc.Close()
		close(s.done)
		if s.onFinish != nil {
			s.onFinish(s, decodeErr)
		}
	}()

	sendCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.quit
		cancel()
	}()

	// wait for the transport to come up
	deadline := time.Now().Add(5 * time.Second)
	for {
		if tr := s.transport(); tr != nil && tr.Ready() {
			break
		}
		if time.Now().After(deadline) {
			slog.Warn("transport not ready, abandoning session")
			return
		}
		select {
		case <-s.quit:
			return
		case <-time.After(100 * time.Millisecond):
		}
	}

	if tr := s.transport(); tr != nil {
		_ = tr.Speaking(true)
	}
	defer func() {
		if tr := s.transport(); tr != nil {
			_ = tr.Speaking(false)
		}
	}()

	frame := make([]byte, FrameBytes)
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		s.pauseMu.Lock()
		paused, gate := s.paused, s.gate
		s.pauseMu.Unlock()
		if paused {
			select {
			case <-gate:
				continue
			case <-s.quit:
				return
			}
		}

		n, err := s.buf.ReadFrame(frame)
		if n > 0 {
			// zero-pad a short final frame so the encoder always sees
			// a whole 20 ms
			for i := n; i < FrameBytes; i++ {
				frame[i] = 0
			}
			pkt, encErr := s.enc.EncodeFrame(frame)
			if encErr != nil {
				slog.Error("encode frame", "err", encErr)
				return
			}
			select {
			case <-ticker.C:
			case <-s.quit:
				return
			}
			if tr := s.transport(); tr != nil && len(pkt) > 0 {
				if sendErr := tr.SendOpus(sendCtx, pkt); sendErr != nil {
					slog.Debug("dropped packet", "err", sendErr)
				}
			}
		}
		if err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				slog.Debug("audio stream ended", "err", err)
			}
			return
		}
	}
}
