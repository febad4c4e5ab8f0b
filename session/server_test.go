package session

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"net"
	"testing"
	"time"

	"gridcore/batch"
)

// newTestServer wires a Server over a fresh in-memory engine listening
// on a loopback port-0 address, returning the listener address and a
// cancel func that tears everything down.
func newTestServer(t *testing.T) (addr string, token string, cancel func()) {
	t.Helper()
	ctx, cancelCtx := context.WithCancel(context.Background())

	engine := batch.NewEngine()
	var tok [32]byte
	copy(tok[:], []byte("0123456789abcdef0123456789abcdef"))
	bridge := NewBridge(ctx, engine, nil)
	srv := NewServer(bridge, tok)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ctx, ln)

	return ln.Addr().String(), hex.EncodeToString(tok[:]), func() {
		cancelCtx()
		ln.Close()
	}
}

type wireConn struct {
	nc     net.Conn
	reader *bufio.Reader
}

func dialWire(t *testing.T, addr string) *wireConn {
	t.Helper()
	nc, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return &wireConn{nc: nc, reader: bufio.NewReader(nc)}
}

func (w *wireConn) send(t *testing.T, v map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := w.nc.Write(append(data, '\n')); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func (w *wireConn) recv(t *testing.T) map[string]interface{} {
	t.Helper()
	w.nc.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := w.reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]interface{}
	if err := json.Unmarshal(line, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", line, err)
	}
	return msg
}

func TestServerHelloWelcome(t *testing.T) {
	addr, token, cancel := newTestServer(t)
	defer cancel()

	w := dialWire(t, addr)
	defer w.nc.Close()
	w.send(t, map[string]interface{}{"type": "hello", "id": "1", "session_id": "s1", "token": token})
	resp := w.recv(t)
	if resp["type"] != "welcome" {
		t.Fatalf("expected welcome, got %+v", resp)
	}
	if resp["protocol_version"].(float64) != float64(ProtocolVersion) {
		t.Fatalf("unexpected protocol_version: %+v", resp)
	}
}

func TestServerRejectsBadToken(t *testing.T) {
	addr, _, cancel := newTestServer(t)
	defer cancel()

	w := dialWire(t, addr)
	defer w.nc.Close()
	w.send(t, map[string]interface{}{"type": "hello", "id": "1", "session_id": "s1", "token": "00"})
	resp := w.recv(t)
	if resp["type"] != "error" || resp["code"] != CodeAuthError {
		t.Fatalf("expected auth_error, got %+v", resp)
	}
}

func TestServerApplyOpsAndInspect(t *testing.T) {
	addr, token, cancel := newTestServer(t)
	defer cancel()

	w := dialWire(t, addr)
	defer w.nc.Close()
	w.send(t, map[string]interface{}{"type": "hello", "id": "1", "session_id": "s1", "token": token})
	w.recv(t) // welcome

	w.send(t, map[string]interface{}{
		"type": "apply_ops",
		"id":   "2",
		"ops": []map[string]interface{}{
			{"kind": "set_cell_value", "sheet": 0, "row": 0, "col": 0, "raw_text": "10"},
			{"kind": "set_cell_value", "sheet": 0, "row": 1, "col": 0, "raw_text": "20"},
			{"kind": "set_cell_value", "sheet": 0, "row": 2, "col": 0, "raw_text": "=A1+A2"},
		},
	})
	applyResp := w.recv(t)
	if applyResp["type"] != "apply_ops_result" || applyResp["id"] != "2" {
		t.Fatalf("unexpected apply_ops_result: %+v", applyResp)
	}
	if applyResp["revision"].(float64) != 1 {
		t.Fatalf("expected revision 1, got %+v", applyResp)
	}

	w.send(t, map[string]interface{}{
		"type":  "inspect",
		"id":    "3",
		"sheet": 0,
		"range": map[string]interface{}{"r1": 0, "c1": 0, "r2": 2, "c2": 0},
	})
	inspectResp := w.recv(t)
	if inspectResp["type"] != "inspect_result" {
		t.Fatalf("unexpected inspect_result: %+v", inspectResp)
	}
	cells, ok := inspectResp["cells"].([]interface{})
	if !ok || len(cells) != 3 {
		t.Fatalf("expected 3 populated cells, got %+v", inspectResp["cells"])
	}
	last := cells[2].(map[string]interface{})
	val := last["value"].(map[string]interface{})
	if val["kind"] != "number" || val["num"].(float64) != 30 {
		t.Fatalf("expected A3 = 30, got %+v", val)
	}
}

func TestServerPing(t *testing.T) {
	addr, token, cancel := newTestServer(t)
	defer cancel()

	w := dialWire(t, addr)
	defer w.nc.Close()
	w.send(t, map[string]interface{}{"type": "hello", "id": "1", "session_id": "s1", "token": token})
	w.recv(t)

	w.send(t, map[string]interface{}{"type": "ping", "id": "9"})
	resp := w.recv(t)
	if resp["type"] != "pong" || resp["id"] != "9" {
		t.Fatalf("expected pong echoing id 9, got %+v", resp)
	}
}

func TestServerRequiresHelloFirst(t *testing.T) {
	addr, _, cancel := newTestServer(t)
	defer cancel()

	w := dialWire(t, addr)
	defer w.nc.Close()
	w.send(t, map[string]interface{}{"type": "ping", "id": "1"})
	resp := w.recv(t)
	if resp["type"] != "error" || resp["code"] != CodeProtocolError {
		t.Fatalf("expected protocol_error before hello, got %+v", resp)
	}
}
