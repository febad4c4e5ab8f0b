package session

import (
	"context"

	"gridcore/batch"
	"gridcore/sheet"
)

// request is one unit of work handed to the engine goroutine. Exactly
// one of the op fields is meaningful, selected by kind; reply carries
// the single response back to the caller alone, so a slow or
// disconnected connection goroutine can never stall another
// connection's turn at the queue.
type request struct {
	kind    requestKind
	apply   applyReq
	inspect inspectReq
	reply   chan response
}

type requestKind int

const (
	reqApply requestKind = iota
	reqInspect
	reqRevision
)

type applyReq struct {
	ops              []batch.Op
	expectedRevision *uint64
	strictParse      bool
}

type inspectReq struct {
	sheet sheet.SheetId
	rect  sheet.Rect
}

type response struct {
	applyResult  batch.Result
	inspectSheet *sheet.Sheet
	inspectFound bool
	revision     uint64
}

// Bridge is the single-producer channel into the engine's owning
// goroutine. Every mutation and every inspect passes through Submit,
// which blocks until the engine processes it — this is what makes §5's
// single-writer model trivially correct: there is exactly one
// goroutine ever touching *batch.Engine.
type Bridge struct {
	engine  *batch.Engine
	queue   chan request
	onEvent func(events []batch.Event)
}

// NewBridge starts the engine goroutine over engine and returns a
// Bridge the session server's connection goroutines submit requests
// to. onEvent, if non-nil, is called (from the engine goroutine, so it
// must not block) after every successful Apply with that batch's
// events, in emission order.
func NewBridge(ctx context.Context, engine *batch.Engine, onEvent func(events []batch.Event)) *Bridge {
	b := &Bridge{
		engine:  engine,
		queue:   make(chan request, 64),
		onEvent: onEvent,
	}
	go b.run(ctx)
	return b
}

func (b *Bridge) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-b.queue:
			switch req.kind {
			case reqApply:
				res := b.engine.Apply(req.apply.ops, req.apply.expectedRevision, req.apply.strictParse)
				if len(res.Events) > 0 && res.Err == nil && b.onEvent != nil {
					b.onEvent(res.Events)
				}
				req.reply <- response{applyResult: res}
			case reqInspect:
				s := b.engine.Workbook().SheetByID(req.inspect.sheet)
				req.reply <- response{inspectSheet: s, inspectFound: s != nil}
			case reqRevision:
				req.reply <- response{revision: b.engine.Workbook().Revision}
			}
		}
	}
}

// Apply submits a batch and blocks for its result.
func (b *Bridge) Apply(ops []batch.Op, expectedRevision *uint64, strictParse bool) batch.Result {
	reply := make(chan response, 1)
	b.queue <- request{
		kind:  reqApply,
		apply: applyReq{ops: ops, expectedRevision: expectedRevision, strictParse: strictParse},
		reply: reply,
	}
	return (<-reply).applyResult
}

// Inspect submits a read-only lookup and blocks for the sheet, if any.
// The returned *sheet.Sheet is only safe to read from the calling
// goroutine synchronously with the reply arriving; it must not be
// retained past that read, since the engine goroutine may mutate it on
// the very next Apply.
func (b *Bridge) Inspect(sheetID sheet.SheetId) (*sheet.Sheet, bool) {
	reply := make(chan response, 1)
	b.queue <- request{kind: reqInspect, inspect: inspectReq{sheet: sheetID}, reply: reply}
	r := <-reply
	return r.inspectSheet, r.inspectFound
}

// Revision returns the engine's current revision.
func (b *Bridge) Revision() uint64 {
	reply := make(chan response, 1)
	b.queue <- request{kind: reqRevision, reply: reply}
	return (<-reply).revision
}
