// Package common provides the types shared by the dCoord HTTP server, its
// client and the CLI.
//
// The package focuses on:
//   - Response envelope and payload definitions for the HTTP API
//   - Configuration structures for client and server components
//   - Custom logging implementation integrated with Dragonboat
//   - Utilities for Dragonboat (RAFT) integration
//
// Key Components:
//
//   - Response: every endpoint answers with {success, data?, error?:{kind,message}}.
//     The kind is derived from coord.KindOf and decides the HTTP status code.
//     RemoteError turns a failed envelope back into an error on the client side.
//
//   - ServerConfig: property store backend, RAFT parameters, table and file
//     locations, lock timeouts and the janitor interval. Provides utilities for
//     converting to Dragonboat-specific configurations.
//
//   - ClientConfig: endpoints, timeouts, retries and the caller identity.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
