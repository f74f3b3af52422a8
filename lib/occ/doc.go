// Package occ implements the optimistic concurrency check for versioned
// records. A record carries a last-modified timestamp; a writer presents the
// timestamp it last saw and the write is rejected when the two differ by more
// than a small tolerance.
//
// The check is compare-and-reject, not compare-and-swap: nothing makes the
// comparison atomic with the subsequent write. Callers hold the record's
// granular lock around both to close that window in practice.
//
// The guard never touches a store. It works on two supplied timestamps, which
// are normalized to epoch milliseconds before comparison so that different
// textual or time zone representations of the same instant never conflict.
package occ
