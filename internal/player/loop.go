package player

import "time"

// run is the player's home loop. All state-machine fields are owned by this
// goroutine; worker goroutines hand closures over instead of sharing locks
// with it.
func (p *Player) run() {
	for {
		select {
		case fn := <-p.tasks:
			fn()
		case <-p.dead:
			return
		}
	}
}

// post schedules fn on the home loop. Posting to a dead player is a no-op.
func (p *Player) post(fn func()) {
	select {
	case p.tasks <- fn:
	case <-p.dead:
	}
}

// do runs fn on the home loop and waits for its result.
func (p *Player) do(fn func() error) error {
	resp := make(chan error, 1)
	select {
	case p.tasks <- func() { resp <- fn() }:
	case <-p.dead:
		return ErrDead
	}
	select {
	case err := <-resp:
		return err
	case <-p.dead:
		return ErrDead
	}
}

// callLater schedules fn on the home loop after d. Pending timers are
// discarded when the player is killed.
func (p *Player) callLater(d time.Duration, fn func()) {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	select {
	case <-p.dead:
		return
	default:
	}
	p.timers = append(p.timers, time.AfterFunc(d, func() { p.post(fn) }))
}

func (p *Player) stopTimers() {
	p.timersMu.Lock()
	defer p.timersMu.Unlock()
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
}
