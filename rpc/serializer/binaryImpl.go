package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey       byte = 1 << 0
	hasValue     byte = 1 << 1
	hasCas       byte = 1 << 2
	hasStatement byte = 1 << 3
	hasPlanID    byte = 1 << 4
	hasParams    byte = 1 << 5
	hasRows      byte = 1 << 6
	hasErr       byte = 1 << 7
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	// Calculate total size needed
	totalSize := b.sizeBytes(msg)
	result := make([]byte, totalSize)

	// Write message type
	result[0] = byte(msg.MsgType)

	// Initialize flags byte
	var flags byte = 0

	// Set position for writing
	pos := 2 // Start after MsgType and flags

	// Handle Key
	if msg.Key != "" {
		flags |= hasKey
		pos = writeBytes(result, pos, []byte(msg.Key))
	}

	// Handle Value
	if msg.Value != nil {
		flags |= hasValue
		pos = writeBytes(result, pos, msg.Value)
	}

	// Handle Cas
	if msg.Cas > 0 {
		flags |= hasCas
		binary.BigEndian.PutUint64(result[pos:pos+8], msg.Cas)
		pos += 8
	}

	// Handle Statement
	if msg.Statement != "" {
		flags |= hasStatement
		pos = writeBytes(result, pos, []byte(msg.Statement))
	}

	// Handle PlanID
	if msg.PlanID != "" {
		flags |= hasPlanID
		pos = writeBytes(result, pos, []byte(msg.PlanID))
	}

	// Handle Params
	if msg.Params != nil {
		flags |= hasParams
		pos = writeByteSlices(result, pos, msg.Params)
	}

	// Handle Rows
	if msg.Rows != nil {
		flags |= hasRows
		pos = writeByteSlices(result, pos, msg.Rows)
	}

	// Handle Err (the kind byte travels together with the message)
	if msg.Err != "" {
		flags |= hasErr
		result[pos] = msg.ErrKind
		pos++
		pos = writeBytes(result, pos, []byte(msg.Err))
	}

	// Set flags byte after knowing which fields are present
	result[1] = flags

	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	// Check minimum size (MsgType + flags)
	if len(data) < 2 {
		return fmt.Errorf("data too short for message header")
	}

	// Read message type
	msg.MsgType = common.MessageType(data[0])

	// Read flags
	flags := data[1]

	// Initialize read position
	pos := 2
	var err error
	var buf []byte

	// Read Key if present
	if flags&hasKey != 0 {
		if buf, pos, err = readBytes(data, pos, "key"); err != nil {
			return err
		}
		msg.Key = string(buf)
	} else {
		msg.Key = ""
	}

	// Read Value if present
	if flags&hasValue != 0 {
		if buf, pos, err = readBytes(data, pos, "value"); err != nil {
			return err
		}
		msg.Value = append([]byte{}, buf...)
	} else {
		msg.Value = nil
	}

	// Read Cas if present
	if flags&hasCas != 0 {
		if pos+8 > len(data) {
			return fmt.Errorf("data too short for cas")
		}
		msg.Cas = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	} else {
		msg.Cas = 0
	}

	// Read Statement if present
	if flags&hasStatement != 0 {
		if buf, pos, err = readBytes(data, pos, "statement"); err != nil {
			return err
		}
		msg.Statement = string(buf)
	} else {
		msg.Statement = ""
	}

	// Read PlanID if present
	if flags&hasPlanID != 0 {
		if buf, pos, err = readBytes(data, pos, "plan id"); err != nil {
			return err
		}
		msg.PlanID = string(buf)
	} else {
		msg.PlanID = ""
	}

	// Read Params if present
	if flags&hasParams != 0 {
		if msg.Params, pos, err = readByteSlices(data, pos, "params"); err != nil {
			return err
		}
	} else {
		msg.Params = nil
	}

	// Read Rows if present
	if flags&hasRows != 0 {
		if msg.Rows, pos, err = readByteSlices(data, pos, "rows"); err != nil {
			return err
		}
	} else {
		msg.Rows = nil
	}

	// Read Err if present
	if flags&hasErr != 0 {
		if pos+1 > len(data) {
			return fmt.Errorf("data too short for error kind")
		}
		msg.ErrKind = data[pos]
		pos++
		if buf, pos, err = readBytes(data, pos, "error"); err != nil {
			return err
		}
		msg.Err = string(buf)
	} else {
		msg.ErrKind = 0
		msg.Err = ""
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// writeBytes writes a length-prefixed byte slice and returns the new position
func writeBytes(dst []byte, pos int, b []byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(b)))
	pos += 4
	copy(dst[pos:pos+len(b)], b)
	return pos + len(b)
}

// readBytes reads a length-prefixed byte slice and returns it together with
// the new position. The returned slice aliases data.
func readBytes(data []byte, pos int, field string) ([]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s length", field)
	}
	length := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4
	if pos+int(length) > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s data", field)
	}
	return data[pos : pos+int(length)], pos + int(length), nil
}

// writeByteSlices writes a count-prefixed list of length-prefixed byte slices
func writeByteSlices(dst []byte, pos int, items [][]byte) int {
	binary.BigEndian.PutUint32(dst[pos:pos+4], uint32(len(items)))
	pos += 4
	for _, item := range items {
		pos = writeBytes(dst, pos, item)
	}
	return pos
}

// readByteSlices reads a count-prefixed list of length-prefixed byte slices
func readByteSlices(data []byte, pos int, field string) ([][]byte, int, error) {
	if pos+4 > len(data) {
		return nil, 0, fmt.Errorf("data too short for %s count", field)
	}
	count := binary.BigEndian.Uint32(data[pos : pos+4])
	pos += 4

	items := make([][]byte, 0, count)
	for i := uint32(0); i < count; i++ {
		item, next, err := readBytes(data, pos, field)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, append([]byte{}, item...))
		pos = next
	}
	return items, pos, nil
}

// sizeBytes calculates the total size needed for serialization
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	// 1 byte for MsgType + 1 byte for flags
	size := 2

	// Add sizes for fields that require length encoding
	if msg.Key != "" {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Cas > 0 {
		size += 8
	}
	if msg.Statement != "" {
		size += 4 + len(msg.Statement)
	}
	if msg.PlanID != "" {
		size += 4 + len(msg.PlanID)
	}
	if msg.Params != nil {
		size += 4
		for _, p := range msg.Params {
			size += 4 + len(p)
		}
	}
	if msg.Rows != nil {
		size += 4
		for _, r := range msg.Rows {
			size += 4 + len(r)
		}
	}
	if msg.Err != "" {
		size += 1 + 4 + len(msg.Err) // kind byte + length + error string
	}

	return size
}
