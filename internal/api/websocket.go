package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xchatlife/novelgraph/internal/events"
	"github.com/xchatlife/novelgraph/internal/log"
)

const (
	defaultReplay = 50
	maxReplay     = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Access is checked by basic auth on the upgrade request.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamQuery reads the event selection shared by /events and /ws/events:
// ?events=node,edge.connected&level=warn&replay=20.
func streamQuery(r *http.Request) (events.Filter, int) {
	q := r.URL.Query()
	f := events.ParseFilter(q.Get("events"), q.Get("level"))
	replay := defaultReplay
	if v, err := strconv.Atoi(q.Get("replay")); err == nil && v >= 0 {
		replay = min(v, maxReplay)
	}
	return f, replay
}

// recentMatching returns the last n buffered events matching f. Zero means
// none.
func recentMatching(n int, f events.Filter) []events.Event {
	if n == 0 {
		return []events.Event{}
	}
	recent := events.RecentEvents(n, f)
	if recent == nil {
		recent = []events.Event{}
	}
	return recent
}

// eventsHandler returns the buffered events matching the stream query.
func eventsHandler(w http.ResponseWriter, r *http.Request) {
	f, replay := streamQuery(r)
	writeJSON(w, http.StatusOK, recentMatching(replay, f))
}

// eventStream pushes one subscription to one websocket peer.
type eventStream struct {
	conn   *websocket.Conn
	sub    *events.Subscription
	logger *slog.Logger
}

// wsEventsHandler replays recent matching events, then streams live ones
// until the peer goes away or the server shuts down.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	f, replay := streamQuery(r)
	logger := log.WithComponent("ws").With("remote", r.RemoteAddr)

	// Subscribe before the handshake completes so nothing emitted between
	// replay and streaming is lost.
	sub := events.Subscribe(f)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		events.Unsubscribe(sub)
		logger.Warn("upgrade failed", "error", err)
		return
	}
	st := &eventStream{conn: conn, sub: sub, logger: logger}
	defer st.close()
	logger.Debug("stream opened", "prefixes", f.Prefixes, "level", f.MinLevel)

	for _, e := range recentMatching(replay, f) {
		if err := st.write(e); err != nil {
			logger.Warn("replay failed", "error", err)
			return
		}
	}

	done := make(chan struct{})
	go st.readLoop(done)
	st.writeLoop(done)
}

func (st *eventStream) write(e events.Event) error {
	st.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return st.conn.WriteJSON(e)
}

// readLoop discards client messages and keeps the read deadline alive on
// pongs. It closes done when the peer disconnects.
func (st *eventStream) readLoop(done chan<- struct{}) {
	defer close(done)
	st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := st.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (st *eventStream) writeLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-st.sub.C:
			if !ok {
				st.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = st.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "editor shutting down"))
				return
			}
			if err := st.write(e); err != nil {
				st.logger.Warn("write failed", "error", err)
				return
			}
		case <-ticker.C:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (st *eventStream) close() {
	events.Unsubscribe(st.sub)
	st.conn.Close()
	if n := st.sub.Dropped(); n > 0 {
		st.logger.Warn("stream closed with dropped events", "dropped", n)
	} else {
		st.logger.Debug("stream closed")
	}
}
