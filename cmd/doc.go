// Package cmd implements the command-line interface for the rKV resilient
// key-value access layer. It provides a hierarchical command structure with
// operations for running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value store operations (get, set, incr, etc.)
//   - query: Commands for executing server-side queries
//   - serve: Commands for starting and configuring the rKV server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See rkv -help for a list of all commands.
package cmd
