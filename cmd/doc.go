// Package cmd implements the command-line interface of dCoord. It provides a
// hierarchical command structure with operations for running the server and
// interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - serve: Starts and configures the dCoord server
//   - project: Project operations (create, update, delete, regenerate, ...)
//   - lock: Inspects and manipulates resource locks (acquire, release, status, sweep)
//   - props: Reads and writes the property store that holds the lock records
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set via an environment variable DCOORD_<FLAG> or a
// .env file in the working directory.
//
// See dcoord -help for a list of all commands.
package cmd
