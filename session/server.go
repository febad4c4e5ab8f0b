package session

import (
	"bufio"
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"gridcore/batch"
)

// subscriberBuffer bounds a connection's outbound event queue. A
// connection that cannot keep up is disconnected with
// lagging_subscriber rather than allowed to stall the fan-out for
// everyone else.
const subscriberBuffer = 256

// Server is the length-framed-JSON TCP listener of §4.5.4: one
// goroutine per connection, a hello/auth/welcome handshake, request
// dispatch to the engine via Bridge, and a per-connection cells
// subscription with a bounded outbound buffer.
type Server struct {
	Token  [32]byte
	Bridge *Bridge
	Audit  *Audit // optional, nil when -audit-dsn was not supplied

	mu          sync.Mutex
	subscribers map[*conn]chan []EventPush
}

// NewServer wires a Server over an already-running Bridge. token is
// compared against every hello in constant time and is never logged or
// written to disk.
func NewServer(bridge *Bridge, token [32]byte) *Server {
	return &Server{
		Token:       token,
		Bridge:      bridge,
		subscribers: make(map[*conn]chan []EventPush),
	}
}

// Broadcast fans a batch's events out to every connection subscribed to
// the cells topic. Called from Bridge's onEvent callback, i.e. from the
// engine goroutine itself — it must never block, so delivery to each
// subscriber is a non-blocking channel send.
func (s *Server) Broadcast(events []batch.Event) {
	pushes := WireEvents(events)
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, ch := range s.subscribers {
		select {
		case ch <- pushes:
		default:
			log.Printf("session: connection %s lagging, dropping", c.remote)
			close(ch)
			delete(s.subscribers, c)
			c.disconnectLagging()
		}
	}
}

func (s *Server) addSubscriber(c *conn) chan []EventPush {
	ch := make(chan []EventPush, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[c] = ch
	s.mu.Unlock()
	return ch
}

func (s *Server) removeSubscriber(c *conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.subscribers[c]; ok {
		delete(s.subscribers, c)
		close(ch)
	}
}

// Serve accepts connections on ln until ctx is cancelled or Accept
// fails. Each connection is handled on its own goroutine; connection
// threads never touch the engine directly, only through s.Bridge.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("session: accept: %w", err)
			}
		}
		c := &conn{server: s, nc: nc, remote: nc.RemoteAddr().String()}
		go c.handle(ctx)
	}
}

// conn is one connection's goroutine-local state: its authentication
// flag, subscription set (tracked in Server.subscribers), and outbound
// write buffer. Nothing here is shared with another connection.
type conn struct {
	server     *Server
	nc         net.Conn
	remote     string
	authed     bool
	subscribed bool
	writeMu    sync.Mutex
}

func (c *conn) handle(ctx context.Context) {
	defer c.nc.Close()
	log.Printf("session: connection from %s", c.remote)

	reader := bufio.NewReaderSize(c.nc, 64*1024)
	if err := c.requireHello(reader); err != nil {
		log.Printf("session: %s: hello failed: %v", c.remote, err)
		return
	}
	defer func() {
		c.server.removeSubscriber(c)
		log.Printf("session: connection closed %s", c.remote)
	}()

	done := make(chan struct{})
	defer close(done)
	var pumpOnce sync.Once
	startPump := func() {
		pumpOnce.Do(func() {
			ch := c.server.addSubscriber(c)
			go c.pumpEvents(ch, done)
		})
	}

	for {
		line, err := readFrame(reader)
		if err != nil {
			return
		}
		typ, req, err := DecodeRequest(line)
		if err != nil {
			c.writeJSON(NewError(nil, CodeProtocolError, err.Error()))
			return
		}
		switch r := req.(type) {
		case *ApplyOpsRequest:
			c.handleApplyOps(r)
		case *InspectRequest:
			c.handleInspect(r)
		case *SubscribeRequest:
			topics := filterTopics(r.Topics)
			if len(topics) > 0 {
				startPump()
				c.subscribed = true
			}
			c.writeJSON(SubscribedResponse{Type: TypeSubscribed, ID: r.ID, Topics: topics})
		case *UnsubscribeRequest:
			topics := filterTopics(r.Topics)
			if len(topics) > 0 {
				c.server.removeSubscriber(c)
				c.subscribed = false
			}
			c.writeJSON(UnsubscribedResponse{Type: TypeUnsubscribed, ID: r.ID, Topics: topics})
		case *PingRequest:
			c.writeJSON(PongResponse{Type: TypePong, ID: r.ID})
		default:
			c.writeJSON(NewError(nil, CodeProtocolError, fmt.Sprintf("unexpected message type %q after hello", typ)))
		}
	}
}

func filterTopics(in []string) []string {
	var out []string
	for _, t := range in {
		if t == TopicCells {
			out = append(out, t)
		}
	}
	return out
}

// requireHello enforces §4.5.4's connection lifecycle: the first
// message must be hello, carrying a token checked in constant time.
func (c *conn) requireHello(reader *bufio.Reader) error {
	line, err := readFrame(reader)
	if err != nil {
		return err
	}
	typ, req, err := DecodeRequest(line)
	if err != nil {
		c.writeJSON(NewError(nil, CodeProtocolError, err.Error()))
		return err
	}
	hello, ok := req.(*HelloRequest)
	if typ != TypeHello || !ok {
		c.writeJSON(NewError(nil, CodeProtocolError, "first message must be hello"))
		return fmt.Errorf("first message was %q, not hello", typ)
	}
	if !constantTimeTokenEqual(hello.Token, c.server.Token) {
		c.writeJSON(NewError(hello.ID, CodeAuthError, "authentication failed"))
		return fmt.Errorf("auth failed")
	}
	c.authed = true
	c.writeJSON(NewWelcome(c.server.Bridge.Revision()))
	return nil
}

// constantTimeTokenEqual compares a hex-encoded token supplied on the
// wire against the server's 32-byte token without leaking timing
// information about where the mismatch occurs.
func constantTimeTokenEqual(given string, want [32]byte) bool {
	decoded, err := hex.DecodeString(given)
	if err != nil || len(decoded) != len(want) {
		return false
	}
	return subtle.ConstantTimeCompare(decoded, want[:]) == 1
}

func (c *conn) handleApplyOps(r *ApplyOpsRequest) {
	ops, badIdx, err := r.ToOps()
	if err != nil {
		c.writeJSON(NewError(r.ID, CodeInvalidOp, fmt.Sprintf("op %d: %v", badIdx, err)))
		return
	}
	res := c.server.Bridge.Apply(ops, r.ExpectedRevision, r.StrictParse)
	c.writeJSON(NewApplyOpsResult(r.ID, res))
	if c.server.Audit != nil && res.Err == nil {
		c.server.Audit.Record(res.Revision, c.remote, len(ops), res.CycleDetected)
	}
}

func (c *conn) handleInspect(r *InspectRequest) {
	s, ok := c.server.Bridge.Inspect(r.Sheet)
	if !ok {
		c.writeJSON(NewError(r.ID, CodeUnknownSheet, fmt.Sprintf("unknown sheet %d", r.Sheet)))
		return
	}
	c.writeJSON(NewInspectResult(r.ID, r.Sheet, s, r.Range.ToRect()))
}

// pumpEvents drains a subscriber channel and writes each batch of
// pushes to the connection until done fires or the channel closes
// (the lagging-subscriber path in Server.Broadcast).
func (c *conn) pumpEvents(events chan []EventPush, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case pushes, ok := <-events:
			if !ok {
				return
			}
			for _, p := range pushes {
				c.writeJSON(p)
			}
		}
	}
}

func (c *conn) disconnectLagging() {
	c.writeJSON(NewError(nil, CodeLaggingSubscriber, "event buffer overflow"))
	c.nc.Close()
}

func (c *conn) writeJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("session: %s: marshal: %v", c.remote, err)
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.nc.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if _, err := c.nc.Write(append(data, '\n')); err != nil {
		log.Printf("session: %s: write: %v", c.remote, err)
	}
}

// readFrame reads one newline-delimited JSON line, enforcing
// MaxMessageSize as a protocol error. It accumulates via ReadSlice
// rather than ReadBytes, checking the running total against the cap
// after every chunk, so a client that streams data without a newline
// is cut off at MaxMessageSize rather than buffering unbounded data
// in memory first.
func readFrame(r *bufio.Reader) ([]byte, error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > MaxMessageSize {
			return nil, fmt.Errorf("%s: message exceeds %d bytes", CodeProtocolError, MaxMessageSize)
		}
		if err == nil {
			break
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		return nil, err
	}
	return bytes.TrimRight(buf, "\r\n"), nil
}
