package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"k8s.io/klog/v2"

	"github.com/tstromberg/folio/pkg/layout"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Resize messages are tiny.
	maxMessageSize = 4096
	// Outbound messages buffered per connection.
	sendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// streamMessage is one progressive layout update sent to a browser.
type streamMessage struct {
	Generation uint64        `json:"generation"`
	Kind       layout.Kind   `json:"kind"`
	Index      int           `json:"index"`
	Placed     *placement    `json:"placed,omitempty"`
	Fault      *layout.Fault `json:"fault,omitempty"`
	Dropped    []string      `json:"dropped,omitempty"`
	Totals     []float64     `json:"totals"`
	Pending    int           `json:"pending"`
	Buckets    int           `json:"buckets"`
	Error      string        `json:"error,omitempty"`
}

// stream is one browser connection and the gallery it drives.
type stream struct {
	s    *Server
	conn *websocket.Conn
	send chan []byte
	g    *layout.Gallery

	// quit is closed when the connection is going away.
	quit chan struct{}
	// stopped is closed when writePump returns.
	stopped chan struct{}
}

// StreamHandler upgrades to a websocket. Every {"width": N} message from the
// browser starts a new layout, and each placement is pushed back as it is decided.
func (s *Server) StreamHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			klog.Warningf("upgrade: %v", err)
			return
		}

		st := &stream{
			s:       s,
			conn:    conn,
			send:    make(chan []byte, sendBuffer),
			quit:    make(chan struct{}),
			stopped: make(chan struct{}),
		}
		st.g = layout.NewGallery(s.descriptors(), s.p, st.notify)
		st.run(r.Context())
	}
}

func (st *stream) run(ctx context.Context) {
	klog.V(1).Infof("stream %s: connected", st.conn.RemoteAddr())
	go func() {
		defer close(st.stopped)
		st.writePump()
	}()

	st.readPump(ctx)

	close(st.quit)
	st.g.Close()
	<-st.stopped
	st.conn.Close()
	klog.V(1).Infof("stream %s: closed after %d layouts", st.conn.RemoteAddr(), st.g.Generation())
}

// notify runs with the gallery lock held, so it never blocks once the
// connection is winding down.
func (st *stream) notify(snap layout.Snapshot) {
	u := snap.Update
	msg := streamMessage{
		Generation: snap.Generation,
		Kind:       u.Kind,
		Index:      u.Index,
		Fault:      u.Fault,
		Totals:     snap.Plan.Totals,
		Pending:    snap.Plan.Pending,
		Buckets:    len(snap.Plan.Buckets),
	}
	if u.Placed != nil {
		p := st.s.placement(*u.Placed, snap.Plan.Orientation)
		msg.Placed = &p
	}
	for _, d := range u.Dropped {
		msg.Dropped = append(msg.Dropped, d.ID)
	}
	st.push(msg)
}

func (st *stream) push(msg streamMessage) {
	b, err := json.Marshal(msg)
	if err != nil {
		klog.Errorf("marshal: %v", err)
		return
	}
	select {
	case st.send <- b:
	case <-st.quit:
	case <-st.stopped:
	}
}

// readPump handles resize messages until the connection fails.
func (st *stream) readPump(ctx context.Context) {
	st.conn.SetReadLimit(maxMessageSize)
	st.conn.SetReadDeadline(time.Now().Add(pongWait))
	st.conn.SetPongHandler(func(string) error {
		return st.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := st.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				klog.Warningf("stream read: %v", err)
			}
			return
		}

		q := layoutQuery{}
		if err := json.Unmarshal(message, &q); err != nil {
			st.push(streamMessage{Error: "invalid message: " + err.Error()})
			continue
		}
		o, err := st.s.options(q)
		if err == nil {
			err = st.g.Relayout(ctx, o)
		}
		if err != nil {
			st.push(streamMessage{Error: err.Error()})
			continue
		}
		klog.V(1).Infof("stream %s: width %d -> %d %s", st.conn.RemoteAddr(), q.Width, o.Buckets, o.Orientation)
	}
}

// writePump sends queued messages and keeps the connection alive.
func (st *stream) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-st.send:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				klog.V(1).Infof("stream write: %v", err)
				// Unblock the reader so the connection winds down.
				st.conn.Close()
				return
			}
		case <-ticker.C:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := st.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				st.conn.Close()
				return
			}
		case <-st.quit:
			st.conn.SetWriteDeadline(time.Now().Add(writeWait))
			st.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
