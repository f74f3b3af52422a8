// Package coord implements the resource operation coordinator: every write to
// a project and its dependent rows (tasks, assignments) and its folder runs
// through a fixed protocol.
//
//  1. Acquire: take the granular lock of the project. If it cannot be taken
//     within Config.LockTimeout the operation ends as AbortedBusy. This is the
//     only admission gate.
//  2. Validate: for updates and deletes, compare the caller's known
//     lastModified with the persisted one (package occ). A mismatch ends the
//     operation as AbortedConflict.
//  3. Provision: for creates, build the project folder through the file store
//     retry policy. A failure does not abort; the project is stored with the
//     SentinelFolder and the Result carries a *ProvisioningError.
//  4. Persist: upsert the project row, then replace the project's dependent
//     rows in one batched write per table. Referential integrity is checked
//     before anything is written.
//  5. Release: the lock is released on every path, including panics.
//
// With Config.CoarseFallback the global lock is taken after the granular one
// and released on its own. It serializes all writers and only exists as a
// degradation path for stores whose granular locks are not strict.
//
// Reads (GetProject, ListProjects) take no lock.
package coord
