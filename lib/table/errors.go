package table

import (
	"errors"
	"fmt"
)

var (
	// ErrStructural is matched by every *StructuralError.
	ErrStructural = errors.New("structural error")
	// ErrRowOutOfRange is returned for row indices outside the table.
	ErrRowOutOfRange = errors.New("row index out of range")
)

// StructuralError reports a missing table or column.
type StructuralError struct {
	Table  string
	Column string // empty if the table itself is missing
}

func (e *StructuralError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("table %q does not exist", e.Table)
	}
	return fmt.Sprintf("table %q has no column %q", e.Table, e.Column)
}

func (e *StructuralError) Is(target error) bool {
	return target == ErrStructural
}

// Permanent marks structural errors as not retryable.
func (e *StructuralError) Permanent() bool { return true }

// RequireColumns returns a StructuralError for the first column of cols missing in t.
func RequireColumns(t Table, cols ...string) error {
	for _, c := range cols {
		if !t.HasColumn(c) {
			return &StructuralError{Table: t.Name, Column: c}
		}
	}
	return nil
}
