package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pgilab/pgilab/server/internal/api"
	"github.com/pgilab/pgilab/server/internal/dataset"
)

// Keepalive timing. A peer that answers no ping within peerIdle is gone.
const (
	writeWait  = 10 * time.Second
	peerIdle   = 60 * time.Second
	pingEvery  = peerIdle * 9 / 10
	queueDepth = 16
	maxInbound = 512
)

// EventSummary is the event name of every message the hub sends.
const EventSummary = "summary"

// Message is one frame on /ws/stream.
type Message struct {
	Event string              `json:"event"`
	Data  api.SummaryResponse `json:"data"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub streams the dataset summary to every open session.
type Hub struct {
	store    *dataset.Store
	interval time.Duration
	wake     chan struct{}

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	id    string
	conn  *websocket.Conn
	queue chan []byte
}

// New returns a hub over st. Run checks st for changes every interval.
func New(st *dataset.Store, interval time.Duration) *Hub {
	return &Hub{
		store:    st,
		interval: interval,
		wake:     make(chan struct{}, 1),
		sessions: make(map[string]*session),
	}
}

// Notify wakes Run for an immediate push. Pending wakes coalesce, so it
// never blocks.
func (h *Hub) Notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

// Run pushes a fresh summary on every Notify. On each tick it pushes only if
// the dataset version moved since the last push, which catches writers that
// never call Notify. Run returns when ctx is done, after closing every
// session.
func (h *Hub) Run(ctx context.Context) {
	tick := time.NewTicker(h.interval)
	defer tick.Stop()

	var pushed uint64
	primed := false
	for {
		select {
		case <-ctx.Done():
			n := h.dropAll()
			slog.Info("ws: hub stopped", "sessions_closed", n)
			return
		case <-h.wake:
			pushed, primed = h.push("change"), true
		case <-tick.C:
			if primed && h.store.Version() == pushed {
				continue
			}
			pushed, primed = h.push("tick"), true
		}
	}
}

// ServeHTTP upgrades the request and holds the session open until the peer
// goes away. The current summary is always the first frame a session sees.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // Upgrade has replied with 400
	}

	opened := time.Now()
	s := &session{id: uuid.NewString(), conn: conn, queue: make(chan []byte, queueDepth)}

	snap := api.BuildSummary(h.store, opened)
	if frame, err := encode(snap); err != nil {
		slog.Error("ws: encode snapshot", "session", s.id, "version", snap.Version, "err", err)
	} else {
		s.queue <- frame
	}

	h.mu.Lock()
	h.sessions[s.id] = s
	h.mu.Unlock()
	slog.Debug("ws: session opened", "session", s.id, "remote", r.RemoteAddr, "version", snap.Version)

	go s.send()
	s.listen()

	h.leave(s)
	slog.Debug("ws: session closed", "session", s.id, "open_for", time.Since(opened).Round(time.Millisecond))
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// push queues the current summary on every session and returns the dataset
// version it carried. A session whose queue is full is evicted.
func (h *Hub) push(reason string) uint64 {
	snap := api.BuildSummary(h.store, time.Now())
	frame, err := encode(snap)
	if err != nil {
		slog.Error("ws: encode summary", "version", snap.Version, "err", err)
		return snap.Version
	}

	var evicted []string
	h.mu.Lock()
	for id, s := range h.sessions {
		select {
		case s.queue <- frame:
		default:
			delete(h.sessions, id)
			close(s.queue)
			evicted = append(evicted, id)
		}
	}
	open := len(h.sessions)
	h.mu.Unlock()

	for _, id := range evicted {
		slog.Warn("ws: session evicted, send queue full", "session", id, "version", snap.Version)
	}
	slog.Debug("ws: summary pushed", "reason", reason, "version", snap.Version, "sessions", open)
	return snap.Version
}

// leave removes s unless push or dropAll already did.
func (h *Hub) leave(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.id] == s {
		delete(h.sessions, s.id)
		close(s.queue)
	}
}

func (h *Hub) dropAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.sessions)
	for id, s := range h.sessions {
		delete(h.sessions, id)
		close(s.queue)
	}
	return n
}

func encode(snap api.SummaryResponse) ([]byte, error) {
	return json.Marshal(Message{Event: EventSummary, Data: snap})
}

// send writes queued frames and keepalive pings. A closed queue means the hub
// let go of the session, so the peer gets a going-away close frame.
func (s *session) send() {
	ping := time.NewTicker(pingEvery)
	defer func() {
		ping.Stop()
		s.conn.Close()
	}()

	for {
		kind, payload := websocket.TextMessage, []byte(nil)
		select {
		case frame, ok := <-s.queue:
			if !ok {
				_ = s.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			payload = frame
		case <-ping.C:
			kind = websocket.PingMessage
		}
		if err := s.write(kind, payload); err != nil {
			slog.Debug("ws: write failed", "session", s.id, "err", err)
			return
		}
	}
}

func (s *session) write(kind int, payload []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(kind, payload)
}

// listen discards inbound data frames. Reading is what drives the pong and
// close handlers, and its error is how a dead peer shows up.
func (s *session) listen() {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxInbound)
	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(peerIdle)) }
	_ = extend("")
	s.conn.SetPongHandler(extend)
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			return
		}
	}
}
