package player

// Event names the lifecycle notifications a player emits.
type Event string

const (
	EventPlay       Event = "play"
	EventPause      Event = "pause"
	EventResume     Event = "resume"
	EventStop       Event = "stop"
	EventEntryAdded Event = "entry-added"
	EventError      Event = "error"
	EventFinished   Event = "finished-playing"
)

type EventPayload struct {
	Player *Player
	Entry  *Entry
	Err    error
}

type EventHandler func(EventPayload)

// On registers a handler for an event. Handlers run synchronously on the
// player's home loop and must not call back into blocking player operations
// like Pause or Resume; use Play/Skip/Stop, which only schedule work.
func (p *Player) On(ev Event, fn EventHandler) {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners[ev] = append(p.listeners[ev], fn)
}

// emit runs on the home loop.
func (p *Player) emit(ev Event, payload EventPayload) {
	p.listenersMu.Lock()
	handlers := append([]EventHandler(nil), p.listeners[ev]...)
	p.listenersMu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (p *Player) clearListeners() {
	p.listenersMu.Lock()
	defer p.listenersMu.Unlock()
	p.listeners = make(map[Event][]EventHandler)
}
