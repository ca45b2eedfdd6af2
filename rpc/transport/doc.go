// Package transport defines the interfaces and abstractions for RPC
// communication in the access layer. It provides a common contract that all
// transport implementations must fulfill, enabling protocol-agnostic
// communication.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Supporting bucket-based request routing
//   - Enabling multiple transport implementations (HTTP, TCP, Unix sockets)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations
//     that handles connection management and request sending. Send performs a
//     single attempt per call; retry policy is layered on top by the caller,
//     where failures can be classified properly.
//
//   - IRPCServerTransport: Interface for server-side transport implementations
//     that receives requests and routes them to appropriate handlers.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
