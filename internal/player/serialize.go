package player

import (
	"encoding/json"
	"errors"
	"fmt"
)

// CurrentState captures the entry that was playing when the snapshot was
// taken, together with its coarse progress.
type CurrentState struct {
	Entry          *Entry `json:"entry"`
	Progress       int    `json:"progress"`
	ProgressFrames int64  `json:"progress_frames"`
}

// SessionState is the serialized form of a player: what was playing and what
// was queued behind it. Volume, pause state and transport bindings are
// runtime concerns and are not captured.
type SessionState struct {
	CurrentEntry *CurrentState `json:"current_entry,omitempty"`
	Entries      []*Entry      `json:"entries"`
}

// Snapshot captures the player's queue and current entry. Safe to call from
// any goroutine; returns an error on a dead player.
func (p *Player) Snapshot() (*SessionState, error) {
	st := &SessionState{}
	err := p.do(func() error {
		if p.current != nil {
			cur := &CurrentState{Entry: p.current}
			if p.session != nil {
				cur.ProgressFrames = p.session.Frames()
				cur.Progress = p.session.Progress()
			}
			st.CurrentEntry = cur
		}
		st.Entries = p.queue.Entries()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

// MarshalState serializes the player for persistence across restarts.
func (p *Player) MarshalState() ([]byte, error) {
	st, err := p.Snapshot()
	if err != nil {
		return nil, err
	}
	return json.Marshal(st)
}

// Restore rebuilds a player from serialized state. The interrupted entry is
// re-inserted at the front of the queue so it plays first; progress is not
// resumed mid-file. The options must carry a live queue, transport and
// process starter; restoring without them is a bug, not a degraded mode.
func Restore(data []byte, opts Options) (*Player, error) {
	if opts.Queue == nil {
		return nil, errors.New("restore: queue required")
	}
	if opts.Transport == nil {
		return nil, errors.New("restore: transport required")
	}
	if opts.StartProcess == nil {
		return nil, errors.New("restore: process starter required")
	}

	var st SessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("restore: decode state: %w", err)
	}

	for _, e := range st.Entries {
		opts.Queue.Append(e)
	}
	if st.CurrentEntry != nil && st.CurrentEntry.Entry != nil {
		opts.Queue.PushFront(st.CurrentEntry.Entry)
	}

	return New(opts)
}
