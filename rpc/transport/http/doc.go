// Package http implements an HTTP-based transport layer for RPC
// communication. It provides concrete implementations of the transport
// interfaces defined in the parent package, enabling communication between
// clients and servers over HTTP.
//
// The package focuses on:
//   - Client-side HTTP transport for sending RPC requests to servers
//   - Server-side HTTP transport for receiving and handling RPC requests
//   - Round-robin load balancing across multiple server endpoints
//   - Request routing based on bucket IDs
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport, managing
//     connections to server endpoints and handling request routing. It uses
//     round-robin selection for load balancing across multiple server
//     endpoints; each Send is a single attempt so the caller's retry policy
//     stays in control.
//
//   - httpServerTransport: Implements IRPCServerTransport, setting up an
//     HTTP server that routes incoming requests to the appropriate handler
//     based on the bucket ID specified in the URL path.
//
// Thread Safety:
//
//	The client transport is thread-safe and can be used concurrently. It uses
//	atomic operations for the round-robin counter to ensure thread safety when
//	selecting server endpoints.
package http
