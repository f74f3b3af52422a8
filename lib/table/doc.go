// Package table defines the contract of the tabular store that holds the
// records of the application (projects, tasks, assignments, templates).
//
// A table is an ordered list of rows; row order is insertion order. Values
// are strings at this boundary: booleans are normalized with ParseBool and
// FormatBool, times are written in the stable text form produced by
// FormatTime. The store offers no query language, so updates of dependent
// rows are done by reading the whole table, filtering in memory and writing
// the result back (ReplaceWhere, UpsertRow). Stores that implement
// IBatchStore do this atomically in a single call. On all other stores
// concurrent rewrites of the same table can lose each other's changes, even if
// they touch rows of different records.
//
// A missing table or column is a StructuralError. Structural errors are
// permanent and are never retried.
package table
