package player

// State is the playback state of a Player. Dead is terminal.
type State int

const (
	// StateStopped means nothing is playing and no session exists.
	StateStopped State = iota
	// StatePlaying means exactly one live session is emitting audio.
	StatePlaying
	// StatePaused means the current session is suspended, not torn down.
	StatePaused
	// StateWaiting means the previous entry finished but the next one is
	// still resolving.
	StateWaiting
	// StateDead means the player has been killed.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateWaiting:
		return "waiting"
	case StateDead:
		return "dead"
	}
	return "unknown"
}
