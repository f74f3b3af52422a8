package table

// Row is one record, keyed by column name.
type Row map[string]string

// Clone returns a copy of r.
func (r Row) Clone() Row {
	c := make(Row, len(r))
	for k, v := range r {
		c[k] = v
	}
	return c
}

// Table is the content of one table at the time it was read.
type Table struct {
	Name    string
	Columns []string
	Rows    []Row
}

// HasColumn reports whether col is part of the table header.
func (t Table) HasColumn(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

// IStore is the tabular store.
type IStore interface {
	// ReadTable returns all rows of a table in insertion order.
	ReadTable(name string) (Table, error)
	// AppendRow adds a row at the end of the table.
	AppendRow(table string, row Row) error
	// OverwriteRange replaces the rows starting at index startRow (0-based).
	// Rows past the current end are appended.
	OverwriteRange(table string, startRow int, rows []Row) error
	// DeleteRow removes the row at index.
	DeleteRow(table string, index int) error
}

// IBatchStore is implemented by stores that can rewrite a whole table in one call.
type IBatchStore interface {
	IStore
	// Rewrite passes the current content of the table to fn and stores the rows it
	// returns. No other write to the table happens in between. An error from fn
	// leaves the table unchanged.
	Rewrite(table string, fn func(current Table) ([]Row, error)) error
}
