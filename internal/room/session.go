// internal/room/session.go
package room

const (
	// broadcastBacklog bounds the per-session backlog of room-wide refreshes.
	// Overflow drops the message: every broadcast is a full-state refresh, so
	// a missed intermediate update is superseded by the next one.
	broadcastBacklog = 16

	// directBacklog bounds the per-player direct queue. Direct messages are
	// never dropped; a session that lets its queue fill up is considered
	// unresponsive and gets cancelled.
	directBacklog = 16
)

// Session is one connected player's attachment to a room. The transport
// layer pumps both channels into the socket; the room only ever queues onto
// them while holding its lock, so sends must not block.
type Session struct {
	Name string

	// Broadcast receives every room-wide message, best-effort.
	Broadcast chan ServerMsg

	// Direct receives private payloads (hands, errors) in order.
	Direct chan ServerMsg

	cancel func()
}

func newSession(name string, cancel func()) *Session {
	return &Session{
		Name:      name,
		Broadcast: make(chan ServerMsg, broadcastBacklog),
		Direct:    make(chan ServerMsg, directBacklog),
		cancel:    cancel,
	}
}

// close releases both channels, waking any pump blocked on them. Called with
// the room lock held, after the session has been removed from the room, so
// no further queueing can race with it.
func (s *Session) close() {
	close(s.Broadcast)
	close(s.Direct)
}

// broadcastLocked queues msg for every attached session. Assumes lock is held.
func (r *Room) broadcastLocked(msg ServerMsg) {
	for name, sess := range r.sessions {
		select {
		case sess.Broadcast <- msg:
		default:
			r.logger.Debugf("broadcast backlog full for %q, dropping refresh", name)
		}
	}
}

// directLocked queues msg for a single player. A full direct queue cancels
// the session rather than dropping the message. Assumes lock is held.
func (r *Room) directLocked(name string, msg ServerMsg) {
	sess, ok := r.sessions[name]
	if !ok {
		return
	}
	select {
	case sess.Direct <- msg:
	default:
		r.logger.Warnf("direct queue full for %q, cancelling unresponsive session", name)
		if sess.cancel != nil {
			sess.cancel()
		}
	}
}
