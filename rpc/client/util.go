package client

import (
	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// rpcClientAdapter stores all data needed for the RPC backend implementation
type rpcClientAdapter struct {
	bucketID   uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invokeRPCRequest is a helper function used to send requests over the wire.
// It serializes the request, sends it through the transport, deserializes the
// response and checks it for errors.
//
// All failures are returned as classifiable backend errors: local
// serialization faults map to KindInternal, transport faults to KindNetwork,
// and server-side errors are reconstructed from the ErrKind the server
// embedded in the response. This keeps the retry policy's classifier working
// across the process boundary.
func invokeRPCRequest(bucketID uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, backend.Errorf(backend.KindInternal, "failed to serialize request: %v", err)
	}

	// Send the request
	respBytes, err := transport.Send(bucketID, reqBytes)
	if err != nil {
		return nil, backend.Errorf(backend.KindNetwork, "transport error: %v", err)
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, backend.Errorf(backend.KindInternal, "failed to deserialize response: %v", err)
	}

	// Check if the response is an error response
	if resp.MsgType == common.MsgTError || resp.Err != "" {
		return nil, backend.NewError(backend.ErrorKind(resp.ErrKind), resp.Err)
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, backend.Errorf(backend.KindInternal, "unexpected message type: %s, expected %s", resp.MsgType, req.MsgType)
	}

	// Return the response
	return resp, nil
}
