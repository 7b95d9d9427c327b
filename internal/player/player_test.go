package player

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	mu      sync.Mutex
	entries []*Entry
	added   []func(*Entry)
}

func (q *fakeQueue) add(e *Entry) {
	q.mu.Lock()
	q.entries = append(q.entries, e)
	listeners := append([]func(*Entry){}, q.added...)
	q.mu.Unlock()
	for _, fn := range listeners {
		fn(e)
	}
}

func (q *fakeQueue) NextEntry(ctx context.Context) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil, nil
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	return e, nil
}

func (q *fakeQueue) Entries() []*Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*Entry(nil), q.entries...)
}

func (q *fakeQueue) PushFront(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append([]*Entry{e}, q.entries...)
}

func (q *fakeQueue) Append(e *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, e)
}

func (q *fakeQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

func (q *fakeQueue) OnEntryAdded(fn func(*Entry)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.added = append(q.added, fn)
}

func (q *fakeQueue) HasFile(string) bool { return false }

type fakeTransport struct{}

func (fakeTransport) Ready() bool                            { return true }
func (fakeTransport) Speaking(bool) error                    { return nil }
func (fakeTransport) SendOpus(context.Context, []byte) error { return nil }
func (fakeTransport) Alive() error                           { return nil }
func (fakeTransport) Reconnect(context.Context) error        { return nil }

// endlessAudio never runs out, for tests that need a stable live session.
type endlessAudio struct{}

func (endlessAudio) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

type fakeProcess struct {
	audio    io.Reader
	done     chan struct{}
	stopOnce sync.Once
}

func newFakeProcess(audio io.Reader) *fakeProcess {
	return &fakeProcess{audio: audio, done: make(chan struct{})}
}

func (p *fakeProcess) Audio() io.Reader       { return p.audio }
func (p *fakeProcess) Diagnostics() io.Reader { return bytes.NewReader(nil) }
func (p *fakeProcess) Pause() error           { return nil }
func (p *fakeProcess) Resume() error          { return nil }
func (p *fakeProcess) Done() <-chan struct{}  { return p.done }

func (p *fakeProcess) Stop() error {
	p.stopOnce.Do(func() { close(p.done) })
	return nil
}

// fakeFactory counts decode process starts and lets each test choose the
// audio each process serves.
type fakeFactory struct {
	mu     sync.Mutex
	starts int
	audio  func() io.Reader
}

func (f *fakeFactory) start(ctx context.Context, input string) (Process, error) {
	f.mu.Lock()
	f.starts++
	f.mu.Unlock()
	return newFakeProcess(f.audio()), nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

type passEncoder struct{}

func (passEncoder) EncodeFrame(pcm []byte) ([]byte, error) { return pcm, nil }
func (passEncoder) Close()                                 {}

func finiteAudio(frames int) func() io.Reader {
	return func() io.Reader {
		return bytes.NewReader(make([]byte, frames*FrameBytes))
	}
}

func newTestPlayer(t *testing.T, q Queue, f *fakeFactory) *Player {
	t.Helper()
	p, err := New(Options{
		GuildID:       "g1",
		Queue:         q,
		StartProcess:  f.start,
		NewEncoder:    func() (Encoder, error) { return passEncoder{}, nil },
		Transport:     fakeTransport{},
		AutoplayDelay: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(p.Kill)
	return p
}

func waitState(t *testing.T, p *Player, want State) {
	t.Helper()
	assert.Eventually(t, func() bool { return p.State() == want },
		3*time.Second, 10*time.Millisecond, "expected state %s", want)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestPauseFromStoppedIsInvalid(t *testing.T) {
	p := newTestPlayer(t, &fakeQueue{}, &fakeFactory{audio: finiteAudio(1)})
	err := p.Pause()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestResumeFromStoppedIsInvalid(t *testing.T) {
	p := newTestPlayer(t, &fakeQueue{}, &fakeFactory{audio: finiteAudio(1)})
	err := p.Resume()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPlayWithEmptyQueueStops(t *testing.T) {
	p := newTestPlayer(t, &fakeQueue{}, &fakeFactory{audio: finiteAudio(1)})
	p.Play()
	waitState(t, p, StateStopped)
}

func TestEntryAddedAutostarts(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "song", URL: "u", Filename: "/tmp/song"})
	waitState(t, p, StatePlaying)
	assert.Equal(t, "song", p.CurrentEntry().Title)
}

func TestFinishedAdvancesAndStops(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: finiteAudio(2)}
	p := newTestPlayer(t, q, f)

	finished := make(chan *Entry, 4)
	p.On(EventFinished, func(ev EventPayload) { finished <- ev.Entry })

	q.add(&Entry{Title: "one", URL: "u1", Filename: "/tmp/one"})
	q.add(&Entry{Title: "two", URL: "u2", Filename: "/tmp/two"})

	waitState(t, p, StateStopped)
	assert.Eventually(t, func() bool { return f.count() == 2 },
		3*time.Second, 10*time.Millisecond)

	got := make([]string, 0, 2)
	for len(got) < 2 {
		select {
		case e := <-finished:
			got = append(got, e.Title)
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for finished events")
		}
	}
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestPauseResumeReusesSession(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "song", URL: "u", Filename: "/tmp/song"})
	waitState(t, p, StatePlaying)

	require.NoError(t, p.Pause())
	assert.Equal(t, StatePaused, p.State())

	// pausing twice is fine
	require.NoError(t, p.Pause())

	require.NoError(t, p.Resume())
	assert.Equal(t, StatePlaying, p.State())
	assert.Equal(t, 1, f.count(), "pause/resume must not restart the process")
}

func TestPlayWhilePausedResumes(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "song", URL: "u", Filename: "/tmp/song"})
	waitState(t, p, StatePlaying)
	require.NoError(t, p.Pause())

	p.Play()
	waitState(t, p, StatePlaying)
	assert.Equal(t, 1, f.count())
}

func TestSkipStartsNextProcess(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "one", URL: "u1", Filename: "/tmp/one"})
	q.add(&Entry{Title: "two", URL: "u2", Filename: "/tmp/two"})
	waitState(t, p, StatePlaying)

	p.Skip()
	assert.Eventually(t, func() bool {
		cur := p.CurrentEntry()
		return cur != nil && cur.Title == "two"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, f.count())
	assert.Equal(t, StatePlaying, p.State())
}

func TestStopTearsDownWithoutAdvancing(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "one", URL: "u1", Filename: "/tmp/one"})
	q.add(&Entry{Title: "two", URL: "u2", Filename: "/tmp/two"})
	waitState(t, p, StatePlaying)

	p.Stop()
	waitState(t, p, StateStopped)
	// give a would-be advance a moment to misfire
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.count(), "stop must not advance")
	assert.Nil(t, p.CurrentEntry())
}

func TestTransientQueueErrorRetries(t *testing.T) {
	q := &flakyQueue{failures: 3, entry: &Entry{Title: "late", URL: "u", Filename: "/tmp/late"}}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p, err := New(Options{
		GuildID:      "g1",
		Queue:        q,
		StartProcess: f.start,
		NewEncoder:   func() (Encoder, error) { return passEncoder{}, nil },
		Transport:    fakeTransport{},
	})
	require.NoError(t, err)
	t.Cleanup(p.Kill)

	p.Play()
	waitState(t, p, StatePlaying)
	assert.Equal(t, "late", p.CurrentEntry().Title)
}

type flakyQueue struct {
	fakeQueue
	mu       sync.Mutex
	failures int
	entry    *Entry
}

func (q *flakyQueue) NextEntry(ctx context.Context) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failures > 0 {
		q.failures--
		return nil, errors.New("still resolving")
	}
	e := q.entry
	q.entry = nil
	return e, nil
}

func TestKillIsTerminal(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "song", URL: "u", Filename: "/tmp/song"})
	waitState(t, p, StatePlaying)

	p.Kill()
	assert.Equal(t, StateDead, p.State())
	assert.ErrorIs(t, p.Pause(), ErrDead)
	assert.Empty(t, q.Entries(), "kill clears the queue")

	// posting to a dead player must not block or panic
	p.Play()
	p.Skip()
	p.Stop()
	assert.Equal(t, StateDead, p.State())
}

func TestKillTwiceIsSafe(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p := newTestPlayer(t, q, f)

	q.add(&Entry{Title: "song", URL: "u", Filename: "/tmp/song"})
	waitState(t, p, StatePlaying)

	// killing an already-dead player must be a no-op, not a panic,
	// regardless of how the kill tasks interleave
	done := make(chan struct{})
	for i := 0; i < 4; i++ {
		go func() {
			p.Kill()
			done <- struct{}{}
		}()
	}
	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatal("kill did not return")
		}
	}
	p.Kill()
	assert.Equal(t, StateDead, p.State())
}

func TestStopCancelsPendingAutoplay(t *testing.T) {
	q := &fakeQueue{}
	f := &fakeFactory{audio: func() io.Reader { return endlessAudio{} }}
	p, err := New(Options{
		GuildID:       "g1",
		Queue:         q,
		StartProcess:  f.start,
		NewEncoder:    func() (Encoder, error) { return passEncoder{}, nil },
		Transport:     fakeTransport{},
		AutoplayDelay: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(p.Kill)

	// two additions while stopped schedule two autoplay timers
	q.add(&Entry{Title: "one", URL: "u1", Filename: "/tmp/one"})
	q.add(&Entry{Title: "two", URL: "u2", Filename: "/tmp/two"})

	// the stop lands before either timer fires; neither may start playback
	p.Stop()
	time.Sleep(400 * time.Millisecond)

	assert.Equal(t, StateStopped, p.State())
	assert.Zero(t, f.count(), "autoplay scheduled before stop must not fire after it")
	assert.Nil(t, p.CurrentEntry())
	assert.Len(t, q.Entries(), 2, "stop must not consume queued entries")
}

func TestVolumeClampsAndPropagates(t *testing.T) {
	p := newTestPlayer(t, &fakeQueue{}, &fakeFactory{audio: finiteAudio(1)})
	assert.Equal(t, 1.0, p.Volume())

	p.SetVolume(1.5)
	assert.Equal(t, 1.5, p.Volume())

	p.SetVolume(-3)
	assert.Equal(t, 0.0, p.Volume())
}
