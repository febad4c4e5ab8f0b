package sheet

import "errors"

// Sentinel errors for conditions callers branch on with errors.Is,
// matching the ambient error-handling convention: package-level
// errors.New values wrapped with fmt.Errorf("...: %w", ...) at the
// call site.
var (
	ErrUnknownSheet     = errors.New("unknown sheet")
	ErrOverlappingMerge = errors.New("overlapping merge")
	ErrNameConflict     = errors.New("name conflict")
	ErrLastSheet        = errors.New("cannot delete the last remaining sheet")
)
