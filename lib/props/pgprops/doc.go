// Package pgprops implements props.IConditionalStore on a single PostgreSQL
// table. SetIfUnset maps to INSERT ... ON CONFLICT DO NOTHING, so lock
// acquisition is a single atomic statement and needs no verification read.
//
// The table is created on first use:
//
//	CREATE TABLE IF NOT EXISTS dcoord_props (
//		prop_key   TEXT PRIMARY KEY,
//		prop_value TEXT NOT NULL,
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	)
package pgprops
