package session

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gridcore/batch"
	"gridcore/sheet"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// InspectHub is a read-only auxiliary transport for browser dashboards
// that prefer a native websocket over the length-framed JSON TCP
// protocol. It never accepts apply_ops — only an initial snapshot
// request and the same coalesced cells event stream the TCP
// subscribers receive — so it can never become a second mutation path
// into the engine.
type InspectHub struct {
	bridge *Bridge

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// NewInspectHub wires a hub over bridge. Call Broadcast after every
// successful batch (the session Server does this from the same
// onEvent callback it uses for the TCP subscribers).
func NewInspectHub(bridge *Bridge) *InspectHub {
	return &InspectHub{bridge: bridge, clients: make(map[*websocket.Conn]bool)}
}

// wsInspectRequest is the one request shape the websocket transport
// accepts: a snapshot of a rectangle on a sheet.
type wsInspectRequest struct {
	Sheet sheet.SheetId `json:"sheet"`
	Range RectWire      `json:"range"`
}

// HandleWebSocket upgrades the connection and serves it until the
// client disconnects.
func (h *InspectHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("session: inspect websocket upgrade:", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req wsInspectRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			log.Println("session: inspect websocket bad request:", err)
			continue
		}
		s, ok := h.bridge.Inspect(req.Sheet)
		if !ok {
			conn.WriteJSON(NewError(nil, CodeUnknownSheet, "unknown sheet"))
			continue
		}
		conn.WriteJSON(NewInspectResult(nil, req.Sheet, s, req.Range.ToRect()))
	}
}

// Broadcast pushes a batch's events to every connected websocket
// client. Must not be called from the engine goroutine directly with
// blocking semantics in mind — WriteJSON can stall on a slow client, so
// writes happen under the hub lock but are best-effort: a write error
// just drops the client on its next read failure.
func (h *InspectHub) Broadcast(events []batch.Event) {
	pushes := WireEvents(events)
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		for _, p := range pushes {
			if err := c.WriteJSON(p); err != nil {
				log.Printf("session: inspect websocket write failed: %v", err)
				break
			}
		}
	}
}
