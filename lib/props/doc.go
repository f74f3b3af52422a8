// Package props defines the shared property store the coordination layer is
// built on: a strictly string-to-string key-value store that is visible to
// every concurrent request. Read-then-write sequences against it are not
// atomic, and callers serialize structured values themselves.
//
// Key Components:
//
//   - IPropertyStore: Get, Set, Delete and ListKeys. This is the minimal
//     contract every backend must provide.
//
//   - IConditionalStore: backends that can offer a native "set if unset"
//     primitive implement this extension. The lock manager detects it at
//     runtime and prefers it over the plain write-then-verify sequence.
//
//   - Error: a typed error carrying a RetCode, used by all backends to report
//     failures in a uniform way.
//
// Implementations:
//
//   - lprops: local, in-memory store for a single process.
//   - dprops: RAFT-replicated store built on Dragonboat.
//   - pgprops: PostgreSQL-backed store.
//
// Plain wraps any store and hides the conditional extension. It models a host
// that only offers the four basic operations and is used to exercise the
// check-then-set code paths.
package props
