package serve

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	cmdUtil "github.com/ValentinKolb/rKV/cmd/util"
	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/backend/memkv"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/server"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/ValentinKolb/rKV/rpc/transport/http"
	"github.com/ValentinKolb/rKV/rpc/transport/tcp"
	"github.com/ValentinKolb/rKV/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// keyScanStatement is the query statement every bucket serves out of the
// box. It returns all key/value pairs whose key starts with the given
// prefix parameter.
const keyScanStatement = "SELECT key, value FROM bucket WHERE key LIKE $1"

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the rKV server",
		Long:    `Start the rKV server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RKV_<flag> (e.g. RKV_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(initConfig)

	// add flags
	key := "buckets"
	ServeCmd.PersistentFlags().String(key, "1=default", cmdUtil.WrapString("Comma-separated list of buckets to serve. Format: ID=NAME (e.g. 1=default,2=sessions)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Per-connection read/write timeout in seconds"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. http:localhost:8080, /tmp/rkv.sock, ...)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("How many requests are processed concurrently per connection (ignored for http)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse buckets
	bucketsConfig := viper.GetString("buckets")
	serveCmdConfig.Buckets = []common.BucketConfig{}
	seen := map[uint64]bool{}
	for _, bucketConfig := range strings.Split(bucketsConfig, ",") {
		parts := strings.Split(bucketConfig, "=")
		if len(parts) != 2 {
			return fmt.Errorf("invalid bucket format: %s (expected ID=NAME)", bucketConfig)
		}

		// Parse bucket ID
		bucketID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return fmt.Errorf("invalid bucket ID %s: %v", parts[0], err)
		}
		if seen[bucketID] {
			return fmt.Errorf("duplicate bucket ID %d", bucketID)
		}
		seen[bucketID] = true

		// Parse bucket name
		bucketName := strings.TrimSpace(parts[1])
		if bucketName == "" {
			return fmt.Errorf("invalid bucket name for ID %d (must not be empty)", bucketID)
		}

		serveCmdConfig.Buckets = append(serveCmdConfig.Buckets, common.BucketConfig{
			ID:   bucketID,
			Name: bucketName,
		})
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint: viper.GetString("endpoint"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
	}

	return nil
}

// run starts the rKV server
func run(_ *cobra.Command, _ []string) error {

	// parse the serializer
	var s serializer.IRPCSerializer
	switch viper.GetString("serializer") {
	case "json":
		s = serializer.NewJSONSerializer()
	case "gob":
		s = serializer.NewGOBSerializer()
	case "binary":
		s = serializer.NewBinarySerializer()
	default:
		return fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}

	// Parse the transport
	bufferSize := viper.GetInt("write-buffer") * 1024
	workersPerConn := viper.GetInt("workers-per-conn")
	var t transport.IRPCServerTransport
	switch viper.GetString("transport") {
	case "http":
		t = http.NewHttpServerTransport()
	case "tcp":
		t = tcp.NewTCPServerTransport(bufferSize, workersPerConn)
	case "unix":
		t = unix.NewUnixServerTransport(bufferSize, workersPerConn)
	default:
		return fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
	)

	// Register the built-in key scan statement on every bucket
	for _, bucket := range serveCmdConfig.Buckets {
		store, ok := serv.Bucket(bucket.ID)
		if !ok {
			return fmt.Errorf("bucket %d not found", bucket.ID)
		}
		if err := serv.RegisterQuery(bucket.ID, keyScanStatement, keyScan(store)); err != nil {
			return err
		}
	}

	return serv.Serve()
}

// keyScan builds the handler for keyScanStatement against one bucket's store
func keyScan(store *memkv.Store) memkv.QueryFunc {
	return func(params backend.Params) (backend.Rows, error) {
		if len(params) != 1 {
			return nil, backend.NewError(backend.KindInvalidArgument, "key scan expects exactly one prefix parameter")
		}
		prefix := string(params[0])

		// Collect matching keys, sorted for a stable result order
		var keys []string
		docs := map[string][]byte{}
		store.Range(func(key string, doc backend.Document) bool {
			if strings.HasPrefix(key, prefix) {
				keys = append(keys, key)
				docs[key] = doc.Value
			}
			return true
		})
		sort.Strings(keys)

		rows := make(backend.Rows, 0, 2*len(keys))
		for _, key := range keys {
			rows = append(rows, []byte(key), docs[key])
		}
		return rows, nil
	}
}

// initConfig reads in serveCmdConfig file and ENV variables if set.
func initConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("rkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}
