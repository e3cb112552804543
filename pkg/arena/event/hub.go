package event

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/argus-labs/arena/pkg/arena/store"
)

const (
	writeDeadline        = 5 * time.Second
	shutdownPollInterval = 50 * time.Millisecond
	commitBufferSize     = 1024
)

// connAndDone carries a websocket connection into the hub loop along with a channel the loop closes once it has
// handled the request.
type connAndDone struct {
	conn *websocket.Conn
	done chan struct{}
}

// Hub broadcasts every commit to all connected websocket clients. All state is owned by the run loop and the other
// methods talk to it through channels.
type Hub struct {
	log zerolog.Logger

	connections      map[*websocket.Conn]bool
	commits          chan []byte
	register         chan connAndDone
	unregister       chan connAndDone
	getConnectionNum chan chan int
	shutdown         chan struct{}
	shutdownOnce     sync.Once
	queue            [][]byte
	isRunning        atomic.Bool
}

// NewHub creates a Hub and starts its loop.
func NewHub(log zerolog.Logger) *Hub {
	h := &Hub{
		log:              log.With().Str("component", "event_hub").Logger(),
		connections:      make(map[*websocket.Conn]bool),
		commits:          make(chan []byte, commitBufferSize),
		register:         make(chan connAndDone),
		unregister:       make(chan connAndDone),
		getConnectionNum: make(chan chan int),
		shutdown:         make(chan struct{}),
		queue:            make([][]byte, 0),
	}
	h.isRunning.Store(true)
	go h.run()
	return h
}

// Subscriber returns a store subscriber that queues each commit for broadcast. It only blocks when the hub is more
// than commitBufferSize commits behind.
func (h *Hub) Subscriber() store.Subscriber {
	return func(_ context.Context, commit store.Commit) {
		data, err := marshal(FromCommit(commit))
		if err != nil {
			h.log.Error().Err(err).Msg("failed to encode commit")
			return
		}
		select {
		case h.commits <- data:
		case <-h.shutdown:
		}
	}
}

// ConnectionCount returns the number of registered websocket clients.
func (h *Hub) ConnectionCount() int {
	c := make(chan int)
	select {
	case h.getConnectionNum <- c:
		return <-c
	case <-h.shutdown:
		return 0
	}
}

// RegisterConnection adds conn to the broadcast set and returns once the hub has accepted it.
func (h *Hub) RegisterConnection(conn *websocket.Conn) {
	done := make(chan struct{})
	select {
	case h.register <- connAndDone{conn: conn, done: done}:
		<-done
	case <-h.shutdown:
	}
}

// UnregisterConnection removes and closes conn.
func (h *Hub) UnregisterConnection(conn *websocket.Conn) {
	done := make(chan struct{})
	select {
	case h.unregister <- connAndDone{conn: conn, done: done}:
		<-done
	case <-h.shutdown:
	}
}

// Shutdown closes every connection and blocks until the loop exits.
func (h *Hub) Shutdown() {
	h.shutdownOnce.Do(func() { close(h.shutdown) })
	for h.isRunning.Load() {
		time.Sleep(shutdownPollInterval)
	}
}

func (h *Hub) run() {
	defer h.isRunning.Store(false)

	for {
		select {
		case c := <-h.getConnectionNum:
			c <- len(h.connections)
		case r := <-h.register:
			h.connections[r.conn] = true
			close(r.done)
		case r := <-h.unregister:
			h.removeConnection(r.conn)
			close(r.done)
		case data := <-h.commits:
			h.queue = append(h.queue, data)
			h.drain()
			h.flush()
		case <-h.shutdown:
			for conn := range h.connections {
				h.removeConnection(conn)
			}
			return
		}
	}
}

// drain moves commits that are already buffered into the queue so they go out in one flush.
func (h *Hub) drain() {
	for {
		select {
		case data := <-h.commits:
			h.queue = append(h.queue, data)
		default:
			return
		}
	}
}

// flush writes the queue to every connection concurrently. Connections that fail a write are dropped.
func (h *Hub) flush() {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []*websocket.Conn
	)
	for conn := range h.connections {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := h.write(conn); err != nil {
				h.log.Warn().Err(err).Msg("dropping websocket connection")
				mu.Lock()
				failed = append(failed, conn)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for _, conn := range failed {
		h.removeConnection(conn)
	}
	h.queue = h.queue[:0]
}

func (h *Hub) write(conn *websocket.Conn) error {
	for _, data := range h.queue {
		if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
			return eris.Wrap(err, "failed to set write deadline")
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return eris.Wrap(err, "failed to write message")
		}
	}
	return nil
}

func (h *Hub) removeConnection(conn *websocket.Conn) {
	if _, ok := h.connections[conn]; !ok {
		return
	}
	delete(h.connections, conn)
	if err := conn.Close(); err != nil {
		h.log.Debug().Err(err).Msg("failed to close websocket connection")
	}
}

// Handler returns the websocket handler for the events endpoint. Messages sent by the client are read and discarded
// until the connection closes.
func (h *Hub) Handler() func(conn *websocket.Conn) {
	return func(conn *websocket.Conn) {
		h.RegisterConnection(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.log.Debug().Err(err).Msg("websocket closed")
				break
			}
		}
		h.UnregisterConnection(conn)
	}
}
