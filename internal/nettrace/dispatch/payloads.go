package dispatch

import (
	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

type allocationTick struct {
	TypeName string
	Size     uint64
}

// parseAllocationTick implements spec §4.6.1: the four additive payload
// versions are handled by checking how many bytes remain before each
// optional field, not by a version number.
func parseAllocationTick(payload []byte, pointerSize uint32) (*allocationTick, error) {
	c := cursor.New(payload)

	amount32, err := c.ReadU32()
	if err != nil {
		return nil, wrapPayload("allocation amount", err)
	}
	if _, err := c.ReadU32(); err != nil { // allocationKind
		return nil, wrapPayload("allocation kind", err)
	}
	if _, err := c.ReadU16(); err != nil { // clrInstanceId
		return nil, wrapPayload("allocation clr instance id", err)
	}

	size := uint64(amount32)
	if c.Len() >= 8 {
		amount64, err := c.ReadU64()
		if err != nil {
			return nil, wrapPayload("allocation amount64", err)
		}
		size = amount64
	}
	if pointerSize > 0 && c.Len() >= int(pointerSize) {
		c.Skip(int(pointerSize)) // typeId, not retained
	}

	typeName := "<unknown>"
	if c.Len() > 0 {
		name, err := c.ReadUTF16String()
		if err == nil && name != "" {
			typeName = name
		}
	}

	return &allocationTick{TypeName: typeName, Size: size}, nil
}

// parseMethodLoad implements spec §4.6.2 (also used for method DCEnd
// verbose, same layout). The trailing clrInstanceId field is ignored.
func parseMethodLoad(payload []byte) (*model.MethodRecord, error) {
	c := cursor.New(payload)

	methodID, err := c.ReadU64()
	if err != nil {
		return nil, wrapPayload("method id", err)
	}
	moduleID, err := c.ReadU64()
	if err != nil {
		return nil, wrapPayload("module id", err)
	}
	startAddress, err := c.ReadU64()
	if err != nil {
		return nil, wrapPayload("method start address", err)
	}
	size, err := c.ReadU32()
	if err != nil {
		return nil, wrapPayload("method size", err)
	}
	token, err := c.ReadU32()
	if err != nil {
		return nil, wrapPayload("method token", err)
	}
	flags, err := c.ReadU32()
	if err != nil {
		return nil, wrapPayload("method flags", err)
	}
	namespace, err := c.ReadUTF16String()
	if err != nil {
		return nil, wrapPayload("method namespace", err)
	}
	name, err := c.ReadUTF16String()
	if err != nil {
		return nil, wrapPayload("method name", err)
	}
	signature, err := c.ReadUTF16String()
	if err != nil {
		return nil, wrapPayload("method signature", err)
	}

	return &model.MethodRecord{
		MethodID:      methodID,
		ModuleID:      moduleID,
		StartAddress:  startAddress,
		Size:          size,
		MetadataToken: token,
		Flags:         flags,
		Namespace:     namespace,
		Name:          name,
		Signature:     signature,
	}, nil
}

// parseMethodJitStart implements spec §4.6.3. No start address is known
// yet at JIT-start time; the resulting record never participates in
// address resolution unless a later load/DCEnd event replaces it.
func parseMethodJitStart(payload []byte) (*model.MethodRecord, error) {
	c := cursor.New(payload)

	methodID, err := c.ReadU64()
	if err != nil {
		return nil, wrapPayload("jit method id", err)
	}
	moduleID, err := c.ReadU64()
	if err != nil {
		return nil, wrapPayload("jit module id", err)
	}
	token, err := c.ReadU32()
	if err != nil {
		return nil, wrapPayload("jit method token", err)
	}
	if _, err := c.ReadU32(); err != nil { // ilSize: IL byte count, not the native code size Size holds
		return nil, wrapPayload("jit il size", err)
	}
	namespace, err := c.ReadUTF16String()
	if err != nil {
		return nil, wrapPayload("jit namespace", err)
	}
	name, err := c.ReadUTF16String()
	if err != nil {
		return nil, wrapPayload("jit name", err)
	}
	signature, err := c.ReadUTF16String()
	if err != nil {
		return nil, wrapPayload("jit signature", err)
	}

	return &model.MethodRecord{
		MethodID:      methodID,
		ModuleID:      moduleID,
		MetadataToken: token,
		Namespace:     namespace,
		Name:          name,
		Signature:     signature,
	}, nil
}

func wrapPayload(detail string, cause error) error {
	return &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "dispatch", Detail: detail + ": " + cause.Error()}
}
