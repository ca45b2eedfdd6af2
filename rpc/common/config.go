package common

import (
	"fmt"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Shared socket configuration
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings shared by all stream transports.
type SocketConf struct {
	// WriteBufferSize is the socket write buffer size in bytes (0 = OS default)
	WriteBufferSize int
	// ReadBufferSize is the socket read buffer size in bytes (0 = OS default)
	ReadBufferSize int
}

// TCPConf holds TCP-specific tuning options.
type TCPConf struct {
	// TCPNoDelay disables Nagle's algorithm when true
	TCPNoDelay bool
	// TCPKeepAliveSec enables keep-alive with the given period (0 = disabled)
	TCPKeepAliveSec int
	// TCPLingerSec sets the linger timeout (-1 = OS default)
	TCPLingerSec int
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig holds the transport settings of an RPC client.
type ClientTransportConfig struct {
	// Endpoints are the server addresses (host:port, socket path or URL
	// depending on the transport)
	Endpoints []string
	// ConnectionsPerEndpoint is the number of parallel connections opened
	// per endpoint (default 1)
	ConnectionsPerEndpoint int

	SocketConf
	TCPConf
}

// ClientConfig holds all configuration parameters for an RPC client.
type ClientConfig struct {
	// TimeoutSecond is the per-request timeout in seconds (0 = no timeout)
	TimeoutSecond int64

	Transport ClientTransportConfig
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	connectionsPerEP := c.Transport.ConnectionsPerEndpoint
	if connectionsPerEP < 1 {
		connectionsPerEP = 1
	}

	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Connections Per Endpoint", strconv.Itoa(connectionsPerEP))

	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// BucketConfig describes one bucket (an isolated key space with its own
// store and query registry) served by the RPC server.
type BucketConfig struct {
	// ID is the bucket ID the client addresses requests with
	ID uint64
	// Name is the human readable bucket name (used in logs)
	Name string
}

// ServerTransportConfig holds the transport settings of an RPC server.
type ServerTransportConfig struct {
	// Endpoint is the address to listen on (host:port, socket path or URL
	// depending on the transport)
	Endpoint string

	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters for the RPC server.
type ServerConfig struct {
	// Buckets served by this server
	Buckets []BucketConfig

	// TimeoutSecond is the per-connection read/write timeout in seconds
	TimeoutSecond int64

	// Logging configuration
	LogLevel string

	Transport ServerTransportConfig
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	addSection("Buckets")
	for _, bucket := range c.Buckets {
		addField(strconv.FormatUint(bucket.ID, 10), bucket.Name)
	}

	return sb.String()
}
