// Package server implements the RPC server of the access layer. It provides
// the adapter for handling RPC requests against a bucket's store, along with
// the core server implementation that manages buckets and request routing.
//
// The package focuses on:
//   - Server-side RPC request handling for document and query operations
//   - Adapter pattern to decouple the store logic from RPC mechanisms
//   - Bucket configuration with one isolated store per bucket
//   - Statement registration so clients can prepare and execute queries
//
// Key Components:
//
//   - IRPCServerAdapter: Interface defining the contract for server adapters,
//     with the Handle method that processes incoming requests against a
//     backend.Backend.
//
//   - NewBackendServerAdapter: Factory function creating the adapter that
//     translates RPC messages into backend calls. Errors keep their
//     backend.ErrorKind across the wire so clients can classify them.
//
//   - NewRPCServer: Factory function creating a configured server with the
//     specified transport and serializer mechanisms.
//
// Usage Example:
//
//	// Create server configuration
//	config := common.ServerConfig{
//	  Buckets: []common.BucketConfig{
//	    {ID: 1, Name: "default"},
//	  },
//	  TimeoutSecond: 5,
//	  LogLevel: "info",
//	  Transport: common.ServerTransportConfig{Endpoint: "0.0.0.0:8080"},
//	}
//
//	// Create and start the server
//	s := server.NewRPCServer(
//	  config,
//	  tcp.NewTCPDefaultServerTransport(),
//	  serializer.NewBinarySerializer(),
//	)
//	if err := s.Serve(); err != nil {
//	  panic(err)
//	}
package server
