package client

import (
	"context"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/rpc/common"
	"github.com/ValentinKolb/rKV/rpc/serializer"
	"github.com/ValentinKolb/rKV/rpc/transport"
)

// NewRPCBackend creates a backend.Backend that forwards all operations to a
// remote bucket. The function takes a bucket ID, a config, a transport and a
// serializer as parameters.
func NewRPCBackend(
	bucketID uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (backend.Backend, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create the RPC backend
	b := rpcBackend{
		rpcClientAdapter{
			bucketID:   bucketID,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	return &b, nil
}

type rpcBackend struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see backend/interface.go)
// --------------------------------------------------------------------------

// The transport enforces the configured request timeout itself, so the
// context is only consulted before the request leaves the process.

func (b *rpcBackend) Fetch(ctx context.Context, key string) (backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return backend.Document{}, err
	}
	req := common.NewFetchRequest(key)
	resp, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	if err != nil {
		return backend.Document{}, err
	}
	return backend.Document{Value: resp.Value, Cas: backend.CasToken(resp.Cas)}, nil
}

func (b *rpcBackend) FetchReplica(ctx context.Context, key string) (backend.Document, error) {
	if err := ctx.Err(); err != nil {
		return backend.Document{}, err
	}
	req := common.NewFetchReplicaRequest(key)
	resp, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	if err != nil {
		return backend.Document{}, err
	}
	return backend.Document{Value: resp.Value, Cas: backend.CasToken(resp.Cas)}, nil
}

func (b *rpcBackend) Write(ctx context.Context, key string, value []byte, cas backend.CasToken) (backend.CasToken, error) {
	if err := ctx.Err(); err != nil {
		return backend.CasNone, err
	}
	req := common.NewWriteRequest(key, value, cas)
	resp, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	if err != nil {
		return backend.CasNone, err
	}
	return backend.CasToken(resp.Cas), nil
}

func (b *rpcBackend) WriteIfAbsent(ctx context.Context, key string, value []byte) (backend.CasToken, error) {
	if err := ctx.Err(); err != nil {
		return backend.CasNone, err
	}
	req := common.NewWriteIfAbsentRequest(key, value)
	resp, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	if err != nil {
		return backend.CasNone, err
	}
	return backend.CasToken(resp.Cas), nil
}

func (b *rpcBackend) Remove(ctx context.Context, key string, cas backend.CasToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	req := common.NewRemoveRequest(key, cas)
	_, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	return err
}

func (b *rpcBackend) Prepare(ctx context.Context, statement string) (backend.PlanHandle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	req := common.NewPrepareRequest(statement)
	resp, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	if err != nil {
		return "", err
	}
	return backend.PlanHandle(resp.PlanID), nil
}

func (b *rpcBackend) ExecutePlan(ctx context.Context, plan backend.PlanHandle, params backend.Params) (backend.Rows, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := common.NewExecutePlanRequest(plan, params)
	resp, err := invokeRPCRequest(b.bucketID, req, b.transport, b.serializer)
	if err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

func (b *rpcBackend) Close() error {
	return b.transport.Close()
}
