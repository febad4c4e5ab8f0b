package sheet

import (
	"fmt"
	"regexp"
	"strings"

	"gridcore/ast"
)

// NamedRange is a workbook-level named reference to a single cell or
// rectangle on a specific sheet.
type NamedRange struct {
	Sheet       SheetId
	StartRow    int
	StartCol    int
	EndRow      int
	EndCol      int
	Description string
}

// cellRefPattern matches any syntactically valid cell reference
// (optionally $-qualified), the same shape a name must not collide
// with.
var cellRefPattern = regexp.MustCompile(`^\$?[A-Za-z]+\$?[0-9]+$`)

// ValidateName rejects names that collide with a valid cell reference
// or a reserved (known) function name; lookups are case-insensitive.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if cellRefPattern.MatchString(name) {
		return fmt.Errorf("name %q collides with a cell reference", name)
	}
	if ast.IsKnownFunction(strings.ToUpper(name)) {
		return fmt.Errorf("name %q collides with a reserved function name", name)
	}
	return nil
}

// NameStore holds the workbook's named ranges, keyed by lower-cased name.
type NameStore struct {
	entries map[string]NamedRange
	display map[string]string // lower -> originally-cased name
}

func NewNameStore() *NameStore {
	return &NameStore{entries: map[string]NamedRange{}, display: map[string]string{}}
}

func (s *NameStore) Define(name string, nr NamedRange) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	key := strings.ToLower(name)
	if _, exists := s.entries[key]; exists {
		return fmt.Errorf("name %q already defined", name)
	}
	s.entries[key] = nr
	s.display[key] = name
	return nil
}

func (s *NameStore) Rename(oldName, newName string) error {
	key := strings.ToLower(oldName)
	nr, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("name %q not found", oldName)
	}
	if err := ValidateName(newName); err != nil {
		return err
	}
	newKey := strings.ToLower(newName)
	if newKey != key {
		if _, exists := s.entries[newKey]; exists {
			return fmt.Errorf("name %q already defined", newName)
		}
		delete(s.entries, key)
		delete(s.display, key)
	}
	s.entries[newKey] = nr
	s.display[newKey] = newName
	return nil
}

func (s *NameStore) Delete(name string) error {
	key := strings.ToLower(name)
	if _, ok := s.entries[key]; !ok {
		return fmt.Errorf("name %q not found", name)
	}
	delete(s.entries, key)
	delete(s.display, key)
	return nil
}

func (s *NameStore) Resolve(name string) (NamedRange, bool) {
	nr, ok := s.entries[strings.ToLower(name)]
	return nr, ok
}

// Names returns every defined name in its originally-cased form.
func (s *NameStore) Names() []string {
	out := make([]string, 0, len(s.display))
	for _, n := range s.display {
		out = append(out, n)
	}
	return out
}
