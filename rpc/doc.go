// Package rpc contains the network surface of dCoord: a JSON-over-HTTP API in
// front of the project coordinator, the lock manager and the property store.
//
// The package is organized into several subpackages:
//
//   - common: Configuration structures, the logger factory and the response
//     envelope with its payload types, shared by server and client.
//
//   - server: The HTTP server. It validates request bodies, maps errors to
//     status codes, runs the background lock janitor and wires the storage
//     backends together (see Bootstrap).
//
//   - client: Clients for the project endpoints plus remote implementations
//     of the lock manager and property store interfaces, so other processes
//     can use a dCoord server transparently.
package rpc
