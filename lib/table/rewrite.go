package table

// ReplaceWhere removes all rows of table matching drop and appends add.
// It returns the number of dropped rows.
func ReplaceWhere(s IStore, name string, drop func(Row) bool, add []Row) (int, error) {
	dropped := 0
	err := rewrite(s, name, func(t Table) ([]Row, error) {
		if err := checkColumns(t, add); err != nil {
			return nil, err
		}
		dropped = 0
		next := make([]Row, 0, len(t.Rows)+len(add))
		for _, r := range t.Rows {
			if drop != nil && drop(r) {
				dropped++
				continue
			}
			next = append(next, r)
		}
		return append(next, add...), nil
	})
	if err != nil {
		return 0, err
	}
	return dropped, nil
}

// UpsertRow replaces the first row whose keyCol equals row[keyCol] in place, or
// appends row if there is none. It reports whether the row was appended.
func UpsertRow(s IStore, name, keyCol string, row Row) (bool, error) {
	inserted := false
	err := rewrite(s, name, func(t Table) ([]Row, error) {
		if err := checkColumns(t, []Row{row}); err != nil {
			return nil, err
		}
		if err := RequireColumns(t, keyCol); err != nil {
			return nil, err
		}
		next := append([]Row(nil), t.Rows...)
		if i := Find(t, keyCol, row[keyCol]); i >= 0 {
			next[i] = row
			inserted = false
		} else {
			next = append(next, row)
			inserted = true
		}
		return next, nil
	})
	return inserted, err
}

// rewrite uses IBatchStore.Rewrite if available. Otherwise it reads the table,
// writes the new content with one OverwriteRange and deletes surplus rows from
// the end; readers may briefly observe a partial state.
func rewrite(s IStore, name string, fn func(Table) ([]Row, error)) error {
	if b, ok := s.(IBatchStore); ok {
		return b.Rewrite(name, fn)
	}

	t, err := s.ReadTable(name)
	if err != nil {
		return err
	}
	next, err := fn(t)
	if err != nil {
		return err
	}
	if len(next) > 0 {
		if err := s.OverwriteRange(name, 0, next); err != nil {
			return err
		}
	}
	for i := len(t.Rows) - 1; i >= len(next); i-- {
		if err := s.DeleteRow(name, i); err != nil {
			return err
		}
	}
	return nil
}

func checkColumns(t Table, rows []Row) error {
	for _, r := range rows {
		for col := range r {
			if !t.HasColumn(col) {
				return &StructuralError{Table: t.Name, Column: col}
			}
		}
	}
	return nil
}

// Find returns the index of the first row whose column col equals value, or -1.
func Find(t Table, col, value string) int {
	for i, r := range t.Rows {
		if r[col] == value {
			return i
		}
	}
	return -1
}

// Filter returns the rows of t whose column col equals value.
func Filter(t Table, col, value string) []Row {
	out := make([]Row, 0)
	for _, r := range t.Rows {
		if r[col] == value {
			out = append(out, r)
		}
	}
	return out
}
