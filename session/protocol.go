// Package session implements the length-framed JSON/TCP protocol of
// §4.5.4: the hello/welcome handshake, apply_ops/inspect requests,
// cells subscriptions, and the bridge into the single-threaded batch
// engine goroutine.
package session

import (
	"encoding/json"
	"fmt"

	"gridcore/batch"
	"gridcore/cellvalue"
	"gridcore/sheet"
)

// ProtocolVersion is returned in welcome; bump on a breaking wire change.
const ProtocolVersion = 1

// MaxMessageSize bounds a single JSON line. A larger line is a
// protocol_error and the connection is closed.
const MaxMessageSize = 10 * 1024 * 1024

// Client -> server message types.
const (
	TypeHello       = "hello"
	TypeApplyOps    = "apply_ops"
	TypeInspect     = "inspect"
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
)

// Server -> client message types.
const (
	TypeWelcome        = "welcome"
	TypeApplyOpsResult = "apply_ops_result"
	TypeInspectResult  = "inspect_result"
	TypeSubscribed     = "subscribed"
	TypeUnsubscribed   = "unsubscribed"
	TypeEvent          = "event"
	TypePong           = "pong"
	TypeError          = "error"
)

// Wire error codes, per §6's error taxonomy.
const (
	CodeProtocolError     = "protocol_error"
	CodeAuthError         = "auth_error"
	CodeRevisionMismatch  = "revision_mismatch"
	CodeInvalidOp         = "invalid_op"
	CodeFormulaParseError = "formula_parse_error"
	CodeUnknownSheet      = "unknown_sheet"
	CodeNameConflict      = "name_conflict"
	CodeCycleDetected     = "cycle_detected"
	CodeOverlappingMerge  = "overlapping_merge"
	CodeLaggingSubscriber = "lagging_subscriber"
	CodeInternalError     = "internal_error"
)

// TopicCells is the only valid subscription topic.
const TopicCells = "cells"

// envelope is decoded first so the type field can select the concrete
// request struct before a second unmarshal.
type envelope struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
}

// HelloRequest must be the first message on a new connection.
type HelloRequest struct {
	ID        json.RawMessage `json:"id"`
	SessionID string          `json:"session_id"`
	Token     string          `json:"token"`
}

// ApplyOpsRequest carries an ordered batch plus the optimistic
// concurrency check and strict-parse option.
type ApplyOpsRequest struct {
	ID               json.RawMessage `json:"id"`
	Ops              []OpWire        `json:"ops"`
	ExpectedRevision *uint64         `json:"expected_revision,omitempty"`
	StrictParse      bool            `json:"strict_parse,omitempty"`
}

// ToOps decodes every OpWire into a concrete batch.Op. On failure it
// returns the index of the first op that failed to decode, matching
// the op_index convention of apply_ops_result.
func (r *ApplyOpsRequest) ToOps() ([]batch.Op, int, error) {
	ops := make([]batch.Op, len(r.Ops))
	for i, w := range r.Ops {
		op, err := w.ToOp()
		if err != nil {
			return nil, i, err
		}
		ops[i] = op
	}
	return ops, -1, nil
}

// InspectRequest reads the current value/format of a rectangle of
// cells without mutating anything.
type InspectRequest struct {
	ID    json.RawMessage `json:"id"`
	Sheet sheet.SheetId   `json:"sheet"`
	Range RectWire        `json:"range"`
}

// SubscribeRequest and UnsubscribeRequest carry a topic list; the only
// valid entry is TopicCells, unrecognized topics are silently dropped
// per the original's subscribe() behavior.
type SubscribeRequest struct {
	ID     json.RawMessage `json:"id"`
	Topics []string        `json:"topics"`
}

type UnsubscribeRequest struct {
	ID     json.RawMessage `json:"id"`
	Topics []string        `json:"topics"`
}

// PingRequest keeps an idle connection alive; the server answers pong.
type PingRequest struct {
	ID json.RawMessage `json:"id"`
}

// DecodeRequest sniffs the envelope's type field and unmarshals line
// into the matching concrete request type, returned as interface{}
// (one of the *Request types above).
func DecodeRequest(line []byte) (string, interface{}, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return "", nil, fmt.Errorf("%s: %w", CodeProtocolError, err)
	}
	var req interface{}
	switch env.Type {
	case TypeHello:
		req = &HelloRequest{}
	case TypeApplyOps:
		req = &ApplyOpsRequest{}
	case TypeInspect:
		req = &InspectRequest{}
	case TypeSubscribe:
		req = &SubscribeRequest{}
	case TypeUnsubscribe:
		req = &UnsubscribeRequest{}
	case TypePing:
		req = &PingRequest{}
	default:
		return env.Type, nil, fmt.Errorf("%s: unknown message type %q", CodeProtocolError, env.Type)
	}
	if err := json.Unmarshal(line, req); err != nil {
		return env.Type, nil, fmt.Errorf("%s: %w", CodeProtocolError, err)
	}
	return env.Type, req, nil
}

// RectWire is the wire encoding of sheet.Rect.
type RectWire struct {
	R1 int `json:"r1"`
	C1 int `json:"c1"`
	R2 int `json:"r2"`
	C2 int `json:"c2"`
}

func (r RectWire) ToRect() sheet.Rect { return sheet.Rect{R1: r.R1, C1: r.C1, R2: r.R2, C2: r.C2} }

func rectWire(r sheet.Rect) RectWire { return RectWire{R1: r.R1, C1: r.C1, R2: r.R2, C2: r.C2} }

// FormatWire is the wire encoding of cellvalue.Format.
type FormatWire struct {
	Alignment    string  `json:"alignment,omitempty"`
	NumberFormat string  `json:"number_format,omitempty"`
	Bold         bool    `json:"bold,omitempty"`
	Italic       bool    `json:"italic,omitempty"`
	Underline    bool    `json:"underline,omitempty"`
	FontName     string  `json:"font_name,omitempty"`
	FontSize     float64 `json:"font_size,omitempty"`
	Foreground   string  `json:"foreground,omitempty"`
	Background   string  `json:"background,omitempty"`
}

func (f FormatWire) ToFormat() cellvalue.Format {
	out := cellvalue.Format{
		NumberFormat: f.NumberFormat,
		Bold:         f.Bold,
		Italic:       f.Italic,
		Underline:    f.Underline,
		FontName:     f.FontName,
		FontSize:     f.FontSize,
		Foreground:   f.Foreground,
		Background:   f.Background,
	}
	switch f.Alignment {
	case "left":
		out.Alignment = cellvalue.AlignLeft
	case "center":
		out.Alignment = cellvalue.AlignCenter
	case "right":
		out.Alignment = cellvalue.AlignRight
	}
	return out
}

func formatWire(f cellvalue.Format) FormatWire {
	w := FormatWire{
		NumberFormat: f.NumberFormat,
		Bold:         f.Bold,
		Italic:       f.Italic,
		Underline:    f.Underline,
		FontName:     f.FontName,
		FontSize:     f.FontSize,
		Foreground:   f.Foreground,
		Background:   f.Background,
	}
	switch f.Alignment {
	case cellvalue.AlignLeft:
		w.Alignment = "left"
	case cellvalue.AlignCenter:
		w.Alignment = "center"
	case cellvalue.AlignRight:
		w.Alignment = "right"
	}
	return w
}

// NamedRangeWire is the wire encoding of sheet.NamedRange.
type NamedRangeWire struct {
	Sheet       sheet.SheetId `json:"sheet"`
	StartRow    int           `json:"start_row"`
	StartCol    int           `json:"start_col"`
	EndRow      int           `json:"end_row"`
	EndCol      int           `json:"end_col"`
	Description string        `json:"description,omitempty"`
}

func (n NamedRangeWire) ToNamedRange() sheet.NamedRange {
	return sheet.NamedRange{
		Sheet: n.Sheet, StartRow: n.StartRow, StartCol: n.StartCol,
		EndRow: n.EndRow, EndCol: n.EndCol, Description: n.Description,
	}
}

// OpWire is the wire encoding of a single batch.Op, discriminated by
// Kind. Only the fields relevant to Kind are populated.
type OpWire struct {
	Kind string `json:"kind"`

	Sheet   sheet.SheetId `json:"sheet,omitempty"`
	Row     int           `json:"row,omitempty"`
	Col     int           `json:"col,omitempty"`
	RawText string        `json:"raw_text,omitempty"`

	Format *FormatWire `json:"format,omitempty"`

	Axis  string `json:"axis,omitempty"` // "rows" or "cols"
	At    int    `json:"at,omitempty"`
	Count int    `json:"count,omitempty"`

	Name    string          `json:"name,omitempty"`
	OldName string          `json:"old_name,omitempty"`
	NewName string          `json:"new_name,omitempty"`
	Target  *NamedRangeWire `json:"target,omitempty"`

	Range RectWire `json:"range,omitempty"`
}

// ToOp builds the concrete batch.Op named by Kind. The thirteen kinds
// match the thirteen Op types of batch/op.go one for one.
func (w OpWire) ToOp() (batch.Op, error) {
	switch w.Kind {
	case "set_cell_value":
		return &batch.SetCellValue{Sheet: w.Sheet, Row: w.Row, Col: w.Col, RawText: w.RawText}, nil
	case "set_cell_format":
		if w.Format == nil {
			return nil, fmt.Errorf("%s: set_cell_format requires format", CodeInvalidOp)
		}
		return &batch.SetCellFormat{Sheet: w.Sheet, Row: w.Row, Col: w.Col, Format: w.Format.ToFormat()}, nil
	case "clear_cell":
		return &batch.ClearCell{Sheet: w.Sheet, Row: w.Row, Col: w.Col}, nil
	case "insert_rows_cols":
		axis, err := parseAxis(w.Axis)
		if err != nil {
			return nil, err
		}
		return &batch.InsertRowsCols{Sheet: w.Sheet, Axis: axis, At: w.At, Count: w.Count}, nil
	case "delete_rows_cols":
		axis, err := parseAxis(w.Axis)
		if err != nil {
			return nil, err
		}
		return &batch.DeleteRowsCols{Sheet: w.Sheet, Axis: axis, At: w.At, Count: w.Count}, nil
	case "add_sheet":
		return &batch.AddSheet{Name: w.Name}, nil
	case "rename_sheet":
		return &batch.RenameSheet{Sheet: w.Sheet, Name: w.Name}, nil
	case "delete_sheet":
		return &batch.DeleteSheet{Sheet: w.Sheet}, nil
	case "define_name":
		if w.Target == nil {
			return nil, fmt.Errorf("%s: define_name requires target", CodeInvalidOp)
		}
		return &batch.DefineName{Name: w.Name, Target: w.Target.ToNamedRange()}, nil
	case "rename_name":
		return &batch.RenameName{OldName: w.OldName, NewName: w.NewName}, nil
	case "delete_name":
		return &batch.DeleteName{Name: w.Name}, nil
	case "add_merge":
		return &batch.AddMerge{Sheet: w.Sheet, Rect: w.Range.ToRect()}, nil
	case "remove_merge":
		return &batch.RemoveMerge{Sheet: w.Sheet, Rect: w.Range.ToRect()}, nil
	default:
		return nil, fmt.Errorf("%s: unknown op kind %q", CodeInvalidOp, w.Kind)
	}
}

func parseAxis(s string) (batch.Axis, error) {
	switch s {
	case "rows":
		return batch.Rows, nil
	case "cols":
		return batch.Cols, nil
	default:
		return 0, fmt.Errorf("%s: invalid axis %q", CodeInvalidOp, s)
	}
}

// WelcomeResponse answers a successful hello.
type WelcomeResponse struct {
	Type            string `json:"type"`
	Revision        uint64 `json:"revision"`
	ProtocolVersion int    `json:"protocol_version"`
}

func NewWelcome(revision uint64) WelcomeResponse {
	return WelcomeResponse{Type: TypeWelcome, Revision: revision, ProtocolVersion: ProtocolVersion}
}

// OpErrorWire is the wire encoding of batch.OpError.
type OpErrorWire struct {
	OpIndex int    `json:"op_index"`
	Reason  string `json:"reason"`
}

// ApplyOpsResultResponse answers apply_ops, success or failure.
type ApplyOpsResultResponse struct {
	Type          string          `json:"type"`
	ID            json.RawMessage `json:"id"`
	Revision      uint64          `json:"revision"`
	Applied       int             `json:"applied"`
	Total         int             `json:"total"`
	Error         *OpErrorWire    `json:"error,omitempty"`
	CycleDetected bool            `json:"cycle_detected,omitempty"`
}

func NewApplyOpsResult(id json.RawMessage, res batch.Result) ApplyOpsResultResponse {
	resp := ApplyOpsResultResponse{
		Type: TypeApplyOpsResult, ID: id,
		Revision: res.Revision, Applied: res.Applied, Total: res.Total,
		CycleDetected: res.CycleDetected,
	}
	if res.Err != nil {
		resp.Error = &OpErrorWire{OpIndex: res.Err.Index, Reason: res.Err.Reason.Error()}
	}
	return resp
}

// ValueWire is the wire encoding of cellvalue.Value. Array values are
// not flattened onto the wire; inspect reports the origin cell's
// scalar view and lets the receiver cells carry their own spilled
// values individually.
type ValueWire struct {
	Kind string  `json:"kind"`
	Num  float64 `json:"num,omitempty"`
	Str  string  `json:"str,omitempty"`
	Bool bool    `json:"bool,omitempty"`
	Err  string  `json:"err,omitempty"`
}

func valueWire(v cellvalue.Value) ValueWire {
	switch v.Tag {
	case cellvalue.VNumber:
		return ValueWire{Kind: "number", Num: v.Num}
	case cellvalue.VText:
		return ValueWire{Kind: "text", Str: v.Str}
	case cellvalue.VBoolean:
		return ValueWire{Kind: "boolean", Bool: v.Bool}
	case cellvalue.VError:
		return ValueWire{Kind: "error", Err: string(v.Err)}
	case cellvalue.VArray:
		return ValueWire{Kind: "array"}
	default:
		return ValueWire{Kind: "empty"}
	}
}

// CellWire is one cell's worth of inspect_result payload.
type CellWire struct {
	Row     int        `json:"row"`
	Col     int        `json:"col"`
	RawText string     `json:"raw_text,omitempty"`
	Value   ValueWire  `json:"value"`
	Format  FormatWire `json:"format"`
}

// InspectResultResponse answers inspect with every populated cell in
// the requested rectangle; unpopulated cells are omitted rather than
// sent as empty placeholders.
type InspectResultResponse struct {
	Type  string          `json:"type"`
	ID    json.RawMessage `json:"id"`
	Sheet sheet.SheetId   `json:"sheet"`
	Cells []CellWire      `json:"cells"`
}

func NewInspectResult(id json.RawMessage, sh sheet.SheetId, s *sheet.Sheet, rect sheet.Rect) InspectResultResponse {
	return InspectResultResponse{Type: TypeInspectResult, ID: id, Sheet: sh, Cells: inspectCells(s, rect)}
}

// inspectCells snapshots every populated cell in rect into wire form.
// Called from the engine's own goroutine, so the result is a frozen
// copy safe to hand across the bridge's reply channel.
func inspectCells(s *sheet.Sheet, rect sheet.Rect) []CellWire {
	n := rect.Normalized()
	var cells []CellWire
	for row := n.R1; row <= n.R2; row++ {
		for col := n.C1; col <= n.C2; col++ {
			c := s.Cell(row, col)
			if c == nil {
				continue
			}
			v := cellvalue.ValueFromStored(c.Stored)
			if c.Stored.Kind == cellvalue.FormulaKind {
				v = c.LastResult
			}
			cells = append(cells, CellWire{
				Row: row, Col: col, RawText: c.Stored.Raw(),
				Value: valueWire(v), Format: formatWire(c.Format),
			})
		}
	}
	return cells
}

// SubscribedResponse and UnsubscribedResponse echo the topics actually
// applied (VALID_TOPICS-filtered).
type SubscribedResponse struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id"`
	Topics []string        `json:"topics"`
}

type UnsubscribedResponse struct {
	Type   string          `json:"type"`
	ID     json.RawMessage `json:"id"`
	Topics []string        `json:"topics"`
}

// PongResponse answers ping.
type PongResponse struct {
	Type string          `json:"type"`
	ID   json.RawMessage `json:"id"`
}

// ErrorResponse reports a protocol-, auth-, or op-level failure. ID is
// omitted for connection-level errors (e.g. a failed hello) that
// precede any request id.
type ErrorResponse struct {
	Type    string          `json:"type"`
	ID      json.RawMessage `json:"id,omitempty"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
}

func NewError(id json.RawMessage, code, message string) ErrorResponse {
	return ErrorResponse{Type: TypeError, ID: id, Code: code, Message: message}
}

// rangeWire is the wire encoding of batch.Range.
type rangeWire struct {
	Sheet sheet.SheetId `json:"sheet"`
	Rect  RectWire      `json:"rect"`
}

func rangesWire(ranges []batch.Range) []rangeWire {
	out := make([]rangeWire, len(ranges))
	for i, r := range ranges {
		out[i] = rangeWire{Sheet: r.Sheet, Rect: rectWire(r.Rect)}
	}
	return out
}

type revisionChangedWire struct {
	Previous uint64 `json:"previous"`
	Revision uint64 `json:"revision"`
}

type cellsChangedWire struct {
	Revision uint64      `json:"revision"`
	Ranges   []rangeWire `json:"ranges"`
}

type batchAppliedWire struct {
	Revision uint64 `json:"revision"`
	Applied  int    `json:"applied"`
	Total    int    `json:"total"`
	Error    string `json:"error,omitempty"`
}

// EventPush wraps one batch.Event for the wire: Kind discriminates the
// payload the way the request/response types discriminate on Type.
type EventPush struct {
	Type  string      `json:"type"`
	Kind  string      `json:"kind"`
	Event interface{} `json:"event"`
}

// WireEvents converts an engine batch result's events into their wire
// push form, in the same order the engine produced them (§4.5.3's
// revision, then cells, then batch_applied ordering).
func WireEvents(events []batch.Event) []EventPush {
	out := make([]EventPush, 0, len(events))
	for _, ev := range events {
		out = append(out, wireEvent(ev))
	}
	return out
}

func wireEvent(ev batch.Event) EventPush {
	switch e := ev.(type) {
	case batch.RevisionChanged:
		return EventPush{Type: TypeEvent, Kind: e.Kind(), Event: revisionChangedWire{Previous: e.Previous, Revision: e.Revision}}
	case batch.CellsChanged:
		return EventPush{Type: TypeEvent, Kind: e.Kind(), Event: cellsChangedWire{Revision: e.Revision, Ranges: rangesWire(e.Ranges)}}
	case batch.BatchApplied:
		return EventPush{Type: TypeEvent, Kind: e.Kind(), Event: batchAppliedWire{Revision: e.Revision, Applied: e.Applied, Total: e.Total, Error: e.Error}}
	default:
		return EventPush{Type: TypeEvent, Kind: ev.Kind()}
	}
}
