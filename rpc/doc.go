// Package rpc provides a framework for remote procedure calls between the
// access layer and a remote document store. It acts as the communication
// layer between clients and servers, enabling operations across network
// boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the RPC system,
//     including the Message protocol, configuration structures, and logging.
//
//   - transport: Network communication abstractions with pluggable
//     implementations (TCP, Unix sockets, HTTP).
//
//   - serializer: Message serialization with multiple format options
//     (Binary, JSON, GOB) for converting between Message objects and byte
//     arrays.
//
//   - client: The remote backend.Backend implementation, allowing the access
//     layer to interact with remote buckets transparently.
//
//   - server: RPC server components that handle incoming requests, routing
//     them to per-bucket stores.
package rpc
