package util

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/rKV/lib/access"
	"github.com/ValentinKolb/rKV/lib/metrics"
	"github.com/ValentinKolb/rKV/lib/retry"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/ValentinKolb/rKV/rpc/transport/http"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/ValentinKolb/rKV/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int64(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport-endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the rKV server. For transports that support load balancing, multiple endpoints can be specified as a comma-separated list"))

	key = "transport-conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint - for transports that support this feature"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY for the transport (only for TCPConf)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval for the transport (in seconds, only for TCPConf)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time for the transport (in seconds, only for TCPConf)"))

	key = "retry-max-attempts"
	cmd.PersistentFlags().Int(key, retry.DefaultMaxAttempts, WrapString("How many times to retry a failed request after the initial try. Only requests that failed with a retryable error (timeout, unavailable, ...) are retried"))

	key = "retry-base-delay-ms"
	cmd.PersistentFlags().Int(key, 50, WrapString("The backoff delay before the first retry (in milliseconds, doubles with every further retry)"))

	key = "conflict-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times an optimistic update is re-run with a fresh read after a write conflict"))

	key = "slow-op-threshold-ms"
	cmd.PersistentFlags().Int(key, 0, WrapString("Operations slower than this threshold are logged and counted (in milliseconds, 0 = disabled)"))

	key = "replica-fallback"
	cmd.PersistentFlags().Bool(key, false, WrapString("Whether reads may fall back to a replica (possibly stale) after all retries against the primary failed"))

	key = "metrics"
	cmd.PersistentFlags().Bool(key, false, WrapString("Whether to record operation latencies and slow operation counts"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		TimeoutSecond: viper.GetInt64("timeout"),
		Transport: common.ClientTransportConfig{
			Endpoints:              strings.Split(viper.GetString("transport-endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("transport-conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}

	return conf
}

// GetRetryPolicy reads the retry policy from viper
func GetRetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: viper.GetInt("retry-max-attempts"),
		BaseDelay:   time.Duration(viper.GetInt("retry-base-delay-ms")) * time.Millisecond,
	}
}

// GetAccessOptions reads the access client options from viper
func GetAccessOptions() access.Options {
	return access.Options{
		Retry:           GetRetryPolicy(),
		ConflictRetries: viper.GetInt("conflict-retries"),
		SlowOpThreshold: time.Duration(viper.GetInt("slow-op-threshold-ms")) * time.Millisecond,
		ReplicaFallback: viper.GetBool("replica-fallback"),
	}
}

// GetMetricsSink creates the metrics sink based on configuration
func GetMetricsSink() metrics.ISink {
	if viper.GetBool("metrics") {
		return metrics.NewVictoriaMetricsSink()
	}
	return metrics.NewNopSink()
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetTransport creates transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "http":
		return http.NewHttpClientTransport(), nil
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetBucketID retrieves the configured bucket ID
func GetBucketID() uint64 {
	return uint64(viper.GetInt("bucket"))
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
