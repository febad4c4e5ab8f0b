package sheet

import "fmt"

// Workbook is an ordered list of sheets, an active-sheet cursor, the
// named-range store, and the monotonic revision counter.
type Workbook struct {
	Sheets      []*Sheet
	ActiveSheet int
	Names       *NameStore
	Revision    uint64

	nextSheetID SheetId
}

// NewWorkbook creates a workbook with a single default sheet, matching
// the invariant that the last remaining sheet can never be deleted.
func NewWorkbook() *Workbook {
	wb := &Workbook{Names: NewNameStore()}
	wb.AddSheet("Sheet1")
	return wb
}

// AddSheet appends a new sheet with a stable, never-reused id. An
// empty name is replaced by "SheetN".
func (wb *Workbook) AddSheet(name string) *Sheet {
	id := wb.nextSheetID
	wb.nextSheetID++
	if name == "" {
		name = fmt.Sprintf("Sheet%d", id+1)
	}
	s := NewSheet(id, name)
	wb.Sheets = append(wb.Sheets, s)
	return s
}

// SheetByID returns the sheet with the given id, or nil.
func (wb *Workbook) SheetByID(id SheetId) *Sheet {
	for _, s := range wb.Sheets {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// SheetByName performs a case-sensitive lookup by display name,
// matching the invariant that display names are unique within a
// workbook (case sensitivity is a display concern, not an identity one).
func (wb *Workbook) SheetByName(name string) *Sheet {
	for _, s := range wb.Sheets {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// RenameSheet changes a sheet's display name, rejecting collisions.
func (wb *Workbook) RenameSheet(id SheetId, name string) error {
	if existing := wb.SheetByName(name); existing != nil && existing.ID != id {
		return fmt.Errorf("%w: sheet name %q already in use", ErrNameConflict, name)
	}
	s := wb.SheetByID(id)
	if s == nil {
		return fmt.Errorf("%w: id %d", ErrUnknownSheet, id)
	}
	s.Name = name
	return nil
}

// DeleteSheet removes a sheet by id. The last remaining sheet cannot
// be deleted.
func (wb *Workbook) DeleteSheet(id SheetId) error {
	if len(wb.Sheets) <= 1 {
		return ErrLastSheet
	}
	idx := -1
	for i, s := range wb.Sheets {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: id %d", ErrUnknownSheet, id)
	}
	wb.Sheets = append(wb.Sheets[:idx], wb.Sheets[idx+1:]...)
	if wb.ActiveSheet >= len(wb.Sheets) {
		wb.ActiveSheet = len(wb.Sheets) - 1
	}
	return nil
}
