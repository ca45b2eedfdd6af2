// Package common provides core data structures and utilities shared across
// the RPC layer. It defines fundamental types, configuration structures, and
// protocol elements used by other packages.
//
// The package focuses on:
//   - Message protocol definition for client/server communication
//   - Configuration structures for client and server components
//   - Custom logging implementation with consistent formatting
//
// Key Components:
//
//   - Message: Core data structure for all RPC communication, with a flexible
//     structure that adapts to different operation types. Includes factory
//     methods for creating the various request and response messages. Error
//     responses carry the backend.ErrorKind so clients can reconstruct a
//     classifiable error on their side of the wire.
//
//   - MessageType: Enumeration defining all supported operation types,
//     categorized into document operations, query operations, and control
//     messages.
//
//   - ServerConfig: Configuration for server nodes, including the served
//     buckets, timeouts and transport tuning options.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters and timeouts.
//
//   - Logger: Custom logging implementation providing consistent formatting
//     across the application.
package common
