// Package internal contains the command and query types exchanged between the
// dprops store and its Dragonboat state machine, including the compact binary
// codec used for raft log entries.
package internal
