package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/rKV/lib/backend"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Document fields
	Key   string `json:"key,omitempty"`   // Used for: Fetch, FetchReplica, Write, WriteIfAbsent, Remove
	Value []byte `json:"value,omitempty"` // Used for: Write, WriteIfAbsent (request), Fetch (response)
	Cas   uint64 `json:"cas,omitempty"`   // CAS guard (request) or newly issued token (response)

	// Query fields
	Statement string   `json:"statement,omitempty"` // Used for: Prepare requests
	PlanID    string   `json:"plan_id,omitempty"`   // Used for: Prepare responses, ExecutePlan requests
	Params    [][]byte `json:"params,omitempty"`    // Used for: ExecutePlan requests
	Rows      [][]byte `json:"rows,omitempty"`      // Used for: ExecutePlan responses

	// Error fields; ErrKind carries the backend.ErrorKind so the client can
	// reconstruct a classifiable error
	ErrKind uint8  `json:"err_kind,omitempty"`
	Err     string `json:"err,omitempty"`
}

// setError fills the error fields of a response from a backend error.
func setError(msg *Message, err error) *Message {
	if err != nil {
		msg.ErrKind = uint8(backend.KindOf(err))
		msg.Err = err.Error()
	}
	return msg
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewFetchRequest creates a new Fetch request
func NewFetchRequest(key string) *Message {
	return &Message{
		MsgType: MsgTFetch,
		Key:     key,
	}
}

// NewFetchReplicaRequest creates a new FetchReplica request
func NewFetchReplicaRequest(key string) *Message {
	return &Message{
		MsgType: MsgTFetchReplica,
		Key:     key,
	}
}

// NewFetchResponse creates a response for Fetch and FetchReplica requests
func NewFetchResponse(msgType MessageType, doc backend.Document, err error) *Message {
	return setError(&Message{
		MsgType: msgType,
		Value:   doc.Value,
		Cas:     uint64(doc.Cas),
	}, err)
}

// NewWriteRequest creates a new Write request
func NewWriteRequest(key string, value []byte, cas backend.CasToken) *Message {
	return &Message{
		MsgType: MsgTWrite,
		Key:     key,
		Value:   value,
		Cas:     uint64(cas),
	}
}

// NewWriteIfAbsentRequest creates a new WriteIfAbsent request
func NewWriteIfAbsentRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTWriteIfAbsent,
		Key:     key,
		Value:   value,
	}
}

// NewWriteResponse creates a response for Write and WriteIfAbsent requests
func NewWriteResponse(msgType MessageType, cas backend.CasToken, err error) *Message {
	return setError(&Message{
		MsgType: msgType,
		Cas:     uint64(cas),
	}, err)
}

// NewRemoveRequest creates a new Remove request
func NewRemoveRequest(key string, cas backend.CasToken) *Message {
	return &Message{
		MsgType: MsgTRemove,
		Key:     key,
		Cas:     uint64(cas),
	}
}

// NewRemoveResponse creates a new Remove response
func NewRemoveResponse(err error) *Message {
	return setError(&Message{MsgType: MsgTRemove}, err)
}

// NewPrepareRequest creates a new Prepare request
func NewPrepareRequest(statement string) *Message {
	return &Message{
		MsgType:   MsgTPrepare,
		Statement: statement,
	}
}

// NewPrepareResponse creates a new Prepare response
func NewPrepareResponse(plan backend.PlanHandle, err error) *Message {
	return setError(&Message{
		MsgType: MsgTPrepare,
		PlanID:  string(plan),
	}, err)
}

// NewExecutePlanRequest creates a new ExecutePlan request
func NewExecutePlanRequest(plan backend.PlanHandle, params backend.Params) *Message {
	return &Message{
		MsgType: MsgTExecutePlan,
		PlanID:  string(plan),
		Params:  params,
	}
}

// NewExecutePlanResponse creates a new ExecutePlan response
func NewExecutePlanResponse(rows backend.Rows, err error) *Message {
	return setError(&Message{
		MsgType: MsgTExecutePlan,
		Rows:    rows,
	}, err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(kind backend.ErrorKind, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		ErrKind: uint8(kind),
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	switch t {
	case MsgTFetch:
		return "fetch"
	case MsgTFetchReplica:
		return "fetchReplica"
	case MsgTWrite:
		return "write"
	case MsgTWriteIfAbsent:
		return "writeIfAbsent"
	case MsgTRemove:
		return "remove"
	case MsgTPrepare:
		return "prepare"
	case MsgTExecutePlan:
		return "executePlan"
	case MsgTError:
		return "error"
	case MsgTSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	// Convert string back to MessageType
	switch s {
	case "fetch":
		*t = MsgTFetch
	case "fetchReplica":
		*t = MsgTFetchReplica
	case "write":
		*t = MsgTWrite
	case "writeIfAbsent":
		*t = MsgTWriteIfAbsent
	case "remove":
		*t = MsgTRemove
	case "prepare":
		*t = MsgTPrepare
	case "executePlan":
		*t = MsgTExecutePlan
	case "error":
		*t = MsgTError
	case "success":
		*t = MsgTSuccess
	default:
		return fmt.Errorf("unknown message type: %s", s)
	}

	return nil
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Document operations

	MsgTFetch         // Fetch a document by key
	MsgTFetchReplica  // Fetch a document from a replica
	MsgTWrite         // Write a document (optionally CAS guarded)
	MsgTWriteIfAbsent // Write a document only if the key is unused
	MsgTRemove        // Remove a document (optionally CAS guarded)

	// Query operations

	MsgTPrepare     // Compile a statement into a plan
	MsgTExecutePlan // Execute a prepared plan
)
