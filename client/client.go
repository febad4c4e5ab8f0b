// Package client is a small interactive TCP client for the session
// protocol: it authenticates, renders a crude grid view of one sheet,
// and lets the user type cell edits at a command line. It exercises
// the wire protocol end-to-end as a second, independent implementation
// of it.
package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Client holds one connection's wire state: the framed reader/writer,
// the next request id to stamp outgoing messages with, and the pending
// reply channels keyed by id so push events and responses can be
// demultiplexed on a single read loop.
type Client struct {
	conn    net.Conn
	reader  *bufio.Reader
	nextID  int
	replies map[string]chan map[string]interface{}
	events  chan map[string]interface{}
	mu      sync.Mutex
}

// Dial connects to addr, sends hello with sessionID/token, and waits
// for welcome. The returned Client's event channel receives every
// subsequent push with no id.
func Dial(addr, sessionID, token string) (*Client, uint64, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, 0, fmt.Errorf("client: dial %s: %w", addr, err)
	}
	c := &Client{
		conn:    nc,
		reader:  bufio.NewReaderSize(nc, 64*1024),
		replies: make(map[string]chan map[string]interface{}),
		events:  make(chan map[string]interface{}, 64),
	}
	go c.readLoop()

	id := c.send(map[string]interface{}{
		"type":       "hello",
		"session_id": sessionID,
		"token":      token,
	})
	resp, err := c.await(id, 5*time.Second)
	if err != nil {
		nc.Close()
		return nil, 0, err
	}
	if resp["type"] != "welcome" {
		nc.Close()
		return nil, 0, fmt.Errorf("client: hello rejected: %v", resp)
	}
	rev, _ := resp["revision"].(float64)
	return c, uint64(rev), nil
}

// Events returns the channel push messages (type "event") arrive on.
func (c *Client) Events() <-chan map[string]interface{} { return c.events }

func (c *Client) readLoop() {
	for {
		line, err := c.reader.ReadBytes('\n')
		if err != nil {
			close(c.events)
			return
		}
		var msg map[string]interface{}
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		if msg["type"] == "event" {
			c.events <- msg
			continue
		}
		id, _ := msg["id"].(string)
		c.mu.Lock()
		ch, ok := c.replies[id]
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Client) send(msg map[string]interface{}) string {
	c.mu.Lock()
	c.nextID++
	id := strconv.Itoa(c.nextID)
	c.mu.Unlock()
	msg["id"] = id
	ch := make(chan map[string]interface{}, 1)
	c.mu.Lock()
	c.replies[id] = ch
	c.mu.Unlock()
	data, _ := json.Marshal(msg)
	c.conn.Write(append(data, '\n'))
	return id
}

func (c *Client) await(id string, timeout time.Duration) (map[string]interface{}, error) {
	c.mu.Lock()
	ch := c.replies[id]
	c.mu.Unlock()
	select {
	case resp := <-ch:
		c.mu.Lock()
		delete(c.replies, id)
		c.mu.Unlock()
		return resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("client: timeout waiting for reply to %s", id)
	}
}

// SetCell sends a single-op apply_ops batch writing rawText to
// (sheet,row,col) and waits for the result.
func (c *Client) SetCell(sheetID, row, col int, rawText string) (map[string]interface{}, error) {
	id := c.send(map[string]interface{}{
		"type": "apply_ops",
		"ops": []map[string]interface{}{
			{"kind": "set_cell_value", "sheet": sheetID, "row": row, "col": col, "raw_text": rawText},
		},
	})
	return c.await(id, 5*time.Second)
}

// Subscribe asks the server for the cells topic.
func (c *Client) Subscribe() (map[string]interface{}, error) {
	id := c.send(map[string]interface{}{"type": "subscribe", "topics": []string{"cells"}})
	return c.await(id, 5*time.Second)
}

// Inspect reads back a rectangle of cells on a sheet.
func (c *Client) Inspect(sheetID, r1, c1, r2, c2 int) (map[string]interface{}, error) {
	id := c.send(map[string]interface{}{
		"type":  "inspect",
		"sheet": sheetID,
		"range": map[string]interface{}{"r1": r1, "c1": c1, "r2": r2, "c2": c2},
	})
	return c.await(id, 5*time.Second)
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// ParseCellInput splits a crude "A1=formula" command line into its
// address and text, returning ok=false for anything else.
func ParseCellInput(line string) (addr, text string, ok bool) {
	idx := strings.Index(line, "=")
	if idx <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), line[idx+1:], true
}
