package batch

import "gridcore/sheet"

// Event is implemented by every kind of batch-produced event. Kind
// exists so a non-type-switching consumer (e.g. a JSON encoder at the
// session boundary) can tag an event without reflection.
type Event interface {
	Kind() string
}

// RevisionChanged announces the workbook's revision counter advancing.
// Exactly one is emitted per successful batch, first.
type RevisionChanged struct {
	Previous uint64
	Revision uint64
}

func (RevisionChanged) Kind() string { return "revision_changed" }

// CellsChanged carries the coalesced rectangles touched by a batch, all
// stamped with the new revision. One or more may be emitted per batch;
// this implementation emits exactly one, since CoalesceCells already
// returns every sheet's ranges in a single call.
type CellsChanged struct {
	Revision uint64
	Ranges   []Range
}

func (CellsChanged) Kind() string { return "cells_changed" }

// BatchApplied is emitted last, exactly once, whether the batch
// succeeded or failed.
type BatchApplied struct {
	Revision uint64
	Applied  int
	Total    int
	Error    string // empty on success
}

func (BatchApplied) Kind() string { return "batch_applied" }

// buildEvents assembles the ordered event list for a successful batch:
// RevisionChanged, then CellsChanged (omitted if nothing changed), then
// BatchApplied. Callers on the failure path build BatchApplied directly
// instead, since §4.5.3 forbids RevisionChanged/CellsChanged on failure.
func buildEvents(prev, revision uint64, changed []sheet.CellId, total int) []Event {
	events := []Event{RevisionChanged{Previous: prev, Revision: revision}}
	if ranges := CoalesceCells(changed); len(ranges) > 0 {
		events = append(events, CellsChanged{Revision: revision, Ranges: ranges})
	}
	events = append(events, BatchApplied{Revision: revision, Applied: total, Total: total})
	return events
}
