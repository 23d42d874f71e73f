package room

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bitbattle/internal/room/model"
)

const (
	pingInterval = 30 * time.Second
	pongWait     = 40 * time.Second
	writeWait    = 10 * time.Second
	readLimit    = 64 * 1024

	outboundQueueSize = 64
)

// peer is the room actor's view of a connected socket.
type peer interface {
	// enqueue hands a frame to the socket's writer. It returns false when
	// the socket is closed or had to be closed because a critical frame
	// could not be queued.
	enqueue(ev model.Event) bool
	// closeAfter queues a final frame and closes the connection once it
	// has been written.
	closeAfter(ev model.Event)
	// shutdown closes the connection immediately.
	shutdown()
}

// socket wraps one websocket connection. All writes go through a bounded
// queue drained by a single writer goroutine, so frame order matches
// enqueue order and a slow client never blocks the room.
type socket struct {
	conn *websocket.Conn

	mu      sync.Mutex
	queue   []model.Event
	closing bool
	closed  bool

	notify    chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newSocket(conn *websocket.Conn) *socket {
	s := &socket{
		conn:   conn,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go s.writeLoop()
	return s
}

// enqueue appends a frame for delivery. When the queue is full the oldest
// queued code_change is dropped to make room; if nothing is droppable a
// non-critical frame is discarded and a critical one closes the socket.
func (s *socket) enqueue(ev model.Event) bool {
	s.mu.Lock()
	if s.closed || s.closing {
		s.mu.Unlock()
		return false
	}
	if len(s.queue) >= outboundQueueSize && !s.dropOldestCodeChange() {
		s.mu.Unlock()
		if ev.Critical() {
			s.shutdown()
			return false
		}
		return true
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()
	s.wake()
	return true
}

// closeAfter queues ev as the last frame; the writer sends it, then a
// close frame, then tears the connection down.
func (s *socket) closeAfter(ev model.Event) {
	s.mu.Lock()
	if s.closed || s.closing {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, ev)
	s.closing = true
	s.mu.Unlock()
	s.wake()
}

func (s *socket) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// dropOldestCodeChange removes the oldest queued code_change frame.
// Caller holds s.mu.
func (s *socket) dropOldestCodeChange() bool {
	for i := range s.queue {
		if s.queue[i].Type == model.EventCodeChange {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true
		}
	}
	return false
}

func (s *socket) next() (model.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return model.Event{}, false
	}
	ev := s.queue[0]
	s.queue = s.queue[1:]
	return ev, true
}

func (s *socket) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.notify:
			for {
				ev, ok := s.next()
				if !ok {
					break
				}
				_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := s.conn.WriteJSON(ev); err != nil {
					s.shutdown()
					return
				}
			}
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(writeWait))
				s.shutdown()
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.shutdown()
				return
			}
		case <-s.done:
			return
		}
	}
}

// shutdown closes the connection. Safe to call from any goroutine and
// more than once; the read loop unblocks with an error and unregisters
// the peer from its room.
func (s *socket) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
		_ = s.conn.Close()
	})
}

// codeChangeLimiter is a token bucket guarding inbound code_change relays
// so one client cannot storm the room fanout.
type codeChangeLimiter struct {
	mu     sync.Mutex
	tokens float64
	burst  float64
	refill float64
	last   time.Time
}

func newCodeChangeLimiter(burst, refillPerSec int) *codeChangeLimiter {
	return &codeChangeLimiter{
		tokens: float64(burst),
		burst:  float64(burst),
		refill: float64(refillPerSec),
		last:   time.Now(),
	}
}

func (l *codeChangeLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.refill
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now
	if l.tokens < 1 {
		return false
	}
	l.tokens--
	return true
}
