// Package ltable implements an in-memory tabular store (table.IBatchStore).
//
// The store can optionally persist itself as a JSON snapshot on an afero file
// system. The snapshot is rewritten after every mutation (write to a temporary
// file, then rename), which is fine for the small tables this application
// keeps.
package ltable
