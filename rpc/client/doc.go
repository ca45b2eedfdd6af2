// Package client implements the RPC client of the access layer. It provides
// an implementation of the backend.Backend interface that communicates with
// remote bucket servers via RPC.
//
// The package focuses on:
//   - Transparent RPC access to remote document stores
//   - Integration with the transport and serialization layers
//   - Error conversion between RPC and backend errors, so the retry
//     policy's classifier keeps working across the process boundary
//
// Key Components:
//
//   - NewRPCBackend: Factory function that creates a client implementing the
//     backend.Backend interface. This client forwards all operations to
//     remote servers via the configured transport layer.
//
// Usage Example:
//
//	// Configure the client
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:5000"},
//	    ConnectionsPerEndpoint: 1,
//	  },
//	}
//
//	// Create the backend
//	be, _ := client.NewRPCBackend(1, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//
//	// Use it directly or wrap it in an access.Client
//	cas, _ := be.Write(ctx, "mykey", []byte("myvalue"), backend.CasNone)
//	doc, _ := be.Fetch(ctx, "mykey")
package client
