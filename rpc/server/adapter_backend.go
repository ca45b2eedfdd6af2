package server

import (
	"context"

	"github.com/ValentinKolb/rKV/lib/backend"
	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewBackendServerAdapter creates the adapter that translates RPC messages
// into backend.Backend calls.
func NewBackendServerAdapter() IRPCServerAdapter {
	return &backendServerAdapterImpl{}
}

type backendServerAdapterImpl struct{}

func (adapter *backendServerAdapterImpl) Handle(req *common.Message, be backend.Backend) *common.Message {
	// Check for nil backend
	if be == nil {
		return common.NewErrorResponse(backend.KindInternal, "handler: backend is nil")
	}

	// The transport enforces the request timeout; handler calls run
	// unbounded against the in-process store.
	ctx := context.Background()

	// Handle different message types
	switch req.MsgType {
	case common.MsgTFetch:
		doc, err := be.Fetch(ctx, req.Key)
		return common.NewFetchResponse(common.MsgTFetch, doc, err)
	case common.MsgTFetchReplica:
		doc, err := be.FetchReplica(ctx, req.Key)
		return common.NewFetchResponse(common.MsgTFetchReplica, doc, err)
	case common.MsgTWrite:
		cas, err := be.Write(ctx, req.Key, req.Value, backend.CasToken(req.Cas))
		return common.NewWriteResponse(common.MsgTWrite, cas, err)
	case common.MsgTWriteIfAbsent:
		cas, err := be.WriteIfAbsent(ctx, req.Key, req.Value)
		return common.NewWriteResponse(common.MsgTWriteIfAbsent, cas, err)
	case common.MsgTRemove:
		err := be.Remove(ctx, req.Key, backend.CasToken(req.Cas))
		return common.NewRemoveResponse(err)
	case common.MsgTPrepare:
		plan, err := be.Prepare(ctx, req.Statement)
		return common.NewPrepareResponse(plan, err)
	case common.MsgTExecutePlan:
		rows, err := be.ExecutePlan(ctx, backend.PlanHandle(req.PlanID), req.Params)
		return common.NewExecutePlanResponse(rows, err)
	default:
		return common.NewErrorResponse(
			backend.KindInvalidArgument,
			"unsupported message type: "+req.MsgType.String(),
		)
	}
}
