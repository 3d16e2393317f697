package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const wsWriteTimeout = 5 * time.Second

// wsConn is the per-peer state shared by both websocket transports.
type wsConn struct {
	conn     *websocket.Conn
	rtt      time.Duration
	bytesIn  int64
	bytesOut int64
}

// WSServer is the production server transport: a websocket listener whose
// read pumps feed an event queue drained by Poll from the tick loop.
type WSServer struct {
	mu     sync.Mutex
	conns  map[ConnID]*wsConn
	events []Event
	nextID ConnID
	srv    *http.Server
}

// NewWSServer creates a websocket server transport listening on addr
// (e.g. ":7777"). Start must be called to begin accepting.
func NewWSServer(addr string) *WSServer {
	t := &WSServer{conns: make(map[ConnID]*wsConn)}
	mux := http.NewServeMux()
	mux.HandleFunc("/", t.accept)
	t.srv = &http.Server{Addr: addr, Handler: mux}
	return t
}

// Start begins accepting connections. It blocks until the listener fails
// or Close is called, so callers run it on its own goroutine.
func (t *WSServer) Start() error {
	if err := t.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ws listen: %w", err)
	}
	return nil
}

func (t *WSServer) accept(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// The session layer authenticates before any replication
		// traffic is admitted; origin checks belong to the deployment.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return
	}
	c.SetReadLimit(1 << 20)

	t.mu.Lock()
	t.nextID++
	id := t.nextID
	t.conns[id] = &wsConn{conn: c}
	t.events = append(t.events, Event{Kind: EventConnected, Conn: id})
	t.mu.Unlock()

	t.readPump(id, c)
}

func (t *WSServer) readPump(id ConnID, c *websocket.Conn) {
	for {
		_, data, err := c.Read(context.Background())
		t.mu.Lock()
		if err != nil {
			if _, open := t.conns[id]; open {
				delete(t.conns, id)
				t.events = append(t.events, Event{Kind: EventDisconnected, Conn: id, Err: err})
			}
			t.mu.Unlock()
			return
		}
		if wc := t.conns[id]; wc != nil {
			wc.bytesIn += int64(len(data))
		}
		t.events = append(t.events, Event{Kind: EventData, Conn: id, Data: data})
		t.mu.Unlock()
	}
}

// Send writes one binary message to conn. Websocket delivery is ordered
// and reliable; the reliable flag only matters for lossy transports.
func (t *WSServer) Send(conn ConnID, data []byte, reliable bool) error {
	t.mu.Lock()
	wc, ok := t.conns[conn]
	if ok {
		wc.bytesOut += int64(len(data))
	}
	t.mu.Unlock()
	if !ok {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	if err := wc.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("ws send to %d: %w", conn, err)
	}
	return nil
}

// Poll drains pending events in arrival order.
func (t *WSServer) Poll() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.events
	t.events = nil
	return out
}

// Disconnect closes one peer.
func (t *WSServer) Disconnect(conn ConnID) {
	t.mu.Lock()
	wc, ok := t.conns[conn]
	if ok {
		delete(t.conns, conn)
		t.events = append(t.events, Event{Kind: EventDisconnected, Conn: conn})
	}
	t.mu.Unlock()
	if ok {
		_ = wc.conn.Close(websocket.StatusNormalClosure, "server disconnect")
	}
}

// Stats reports connection quality for conn.
func (t *WSServer) Stats(conn ConnID) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	wc, ok := t.conns[conn]
	if !ok {
		return Stats{}
	}
	return Stats{RTT: wc.rtt, BandwidthIn: wc.bytesIn, BandwidthOut: wc.bytesOut}
}

// ObserveRTT records a heartbeat RTT sample.
func (t *WSServer) ObserveRTT(conn ConnID, rtt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if wc, ok := t.conns[conn]; ok {
		wc.rtt = rtt
	}
}

// Close stops the listener and closes every connection.
func (t *WSServer) Close() error {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[ConnID]*wsConn)
	t.mu.Unlock()
	for _, wc := range conns {
		_ = wc.conn.CloseNow()
	}
	return t.srv.Close()
}

// WSClient is the client-side websocket transport: a single connection to
// the server, polled once per frame.
type WSClient struct {
	mu     sync.Mutex
	conn   *wsConn
	events []Event
}

// The server is always conn 1 on a client transport.
const ServerConn ConnID = 1

// DialWS connects to a websocket server ("ws://host:port").
func DialWS(ctx context.Context, url string) (*WSClient, error) {
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", url, err)
	}
	c.SetReadLimit(1 << 20)

	t := &WSClient{conn: &wsConn{conn: c}}
	t.events = append(t.events, Event{Kind: EventConnected, Conn: ServerConn})
	go t.readPump(c)
	return t, nil
}

func (t *WSClient) readPump(c *websocket.Conn) {
	for {
		_, data, err := c.Read(context.Background())
		t.mu.Lock()
		if err != nil {
			if t.conn != nil {
				t.conn = nil
				t.events = append(t.events, Event{Kind: EventDisconnected, Conn: ServerConn, Err: err})
			}
			t.mu.Unlock()
			return
		}
		t.conn.bytesIn += int64(len(data))
		t.events = append(t.events, Event{Kind: EventData, Conn: ServerConn, Data: data})
		t.mu.Unlock()
	}
}

func (t *WSClient) Send(conn ConnID, data []byte, reliable bool) error {
	t.mu.Lock()
	wc := t.conn
	if wc != nil {
		wc.bytesOut += int64(len(data))
	}
	t.mu.Unlock()
	if wc == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	if err := wc.conn.Write(ctx, websocket.MessageBinary, data); err != nil {
		return fmt.Errorf("ws send: %w", err)
	}
	return nil
}

func (t *WSClient) Poll() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.events
	t.events = nil
	return out
}

func (t *WSClient) Disconnect(conn ConnID) {
	t.mu.Lock()
	wc := t.conn
	t.conn = nil
	t.mu.Unlock()
	if wc != nil {
		_ = wc.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
}

func (t *WSClient) Stats(conn ConnID) Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return Stats{}
	}
	return Stats{RTT: t.conn.rtt, BandwidthIn: t.conn.bytesIn, BandwidthOut: t.conn.bytesOut}
}

func (t *WSClient) ObserveRTT(conn ConnID, rtt time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		t.conn.rtt = rtt
	}
}

func (t *WSClient) Close() error {
	t.Disconnect(ServerConn)
	return nil
}
