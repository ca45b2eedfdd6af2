package server

import (
	"fmt"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/lib/backend/memkv"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverBucket represents one bucket served by the RPC server. It contains
// the bucket's store and the adapter that handles requests for it.
type serverBucket struct {
	Name    string
	Store   *memkv.Store
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) RPCServer {
	// Init logger
	common.InitLoggers(config.LogLevel)

	// Create the buckets eagerly so queries can be registered before Serve
	buckets := xsync.NewMapOf[uint64, serverBucket]()
	for _, bucketConfig := range config.Buckets {
		buckets.Store(bucketConfig.ID, serverBucket{
			Name:    bucketConfig.Name,
			Store:   memkv.New(),
			Adapter: NewBackendServerAdapter(),
		})
		Logger.Infof("created bucket %d (%s)", bucketConfig.ID, bucketConfig.Name)
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		buckets:    buckets,
	}
}

type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	buckets    *xsync.MapOf[uint64, serverBucket]
}

// RegisterQuery registers a statement handler on a bucket's store. Clients
// can then Prepare and ExecutePlan the statement against that bucket.
func (s *RPCServer) RegisterQuery(bucketID uint64, statement string, fn memkv.QueryFunc) error {
	bucket, ok := s.buckets.Load(bucketID)
	if !ok {
		return fmt.Errorf("bucket %d not found", bucketID)
	}
	bucket.Store.RegisterQuery(statement, fn)
	return nil
}

// Bucket returns the store behind a bucket ID.
func (s *RPCServer) Bucket(bucketID uint64) (*memkv.Store, bool) {
	bucket, ok := s.buckets.Load(bucketID)
	if !ok {
		return nil, false
	}
	return bucket.Store, true
}

func (s *RPCServer) registerTransportHandler() {
	s.transport.RegisterHandler(func(bucketID uint64, req []byte) []byte {
		var msg common.Message
		var respMsg common.Message

		// Get appropriate bucket
		bucket, ok := s.buckets.Load(bucketID)

		// Case bucket does not exist -> error
		if !ok {
			respMsg = *common.NewErrorResponse(
				backend.KindNotFound,
				fmt.Sprintf("bucket %d not found", bucketID),
			)
		} else {
			// Decode the request
			err := s.serializer.Deserialize(req, &msg)

			if err != nil {
				respMsg = *common.NewErrorResponse(
					backend.KindParse,
					fmt.Sprintf("failed to deserialize request: %s", err),
				)
			} else {
				// Let the adapter handle the request
				respMsg = *bucket.Adapter.Handle(&msg, bucket.Store)
			}
		}

		// Return result
		val, err := s.serializer.Serialize(respMsg)
		if err != nil {
			Logger.Errorf("failed to serialize response: %s", err)
			return nil
		}
		return val
	})
}

// Serve starts the RPC server
// This function registers the transport handler and starts the transport layer
func (s *RPCServer) Serve() error {
	s.registerTransportHandler()
	return s.transport.Listen(s.config)
}
