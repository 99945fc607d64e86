package block

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// maxFieldCount guards against a corrupt fieldCount value turning a single
// malformed descriptor into an unbounded read loop; real schemas have at
// most a few dozen fields.
const maxFieldCount = 100_000

// DecodeMetadataBlock decodes every schema descriptor pseudo-event in a
// MetadataBlock payload (spec §4.4). A malformed individual descriptor is
// skipped; a malformed header aborts the remainder of the block, since the
// decoder can no longer trust its position in the stream.
func DecodeMetadataBlock(cur *cursor.Cursor) ([]*model.EventSchema, []string) {
	header, err := ReadHeader(cur, model.BlockMetadata)
	if err != nil {
		return nil, []string{err.Error()}
	}

	var schemas []*model.EventSchema
	var errs []string
	carry := &model.CarryState{}

	for cur.Len() > 0 {
		ev, err := ReadEvent(cur, header.Compressed(), carry)
		if err != nil {
			errs = append(errs, err.Error())
			break
		}

		schema, err := decodeSchemaPayload(ev.Payload)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		schemas = append(schemas, schema)
	}
	return schemas, errs
}

func decodeSchemaPayload(payload []byte) (*model.EventSchema, error) {
	pc := cursor.New(payload)

	metadataID, err := pc.ReadU32()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema metadata id", err)
	}
	provider, err := pc.ReadUTF16String()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema provider name", err)
	}
	eventID, err := pc.ReadI32()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema event id", err)
	}
	eventName, err := pc.ReadUTF16String()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema event name", err)
	}
	keywords, err := pc.ReadI64()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema keywords", err)
	}
	version, err := pc.ReadI32()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema version", err)
	}
	level, err := pc.ReadI32()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema level", err)
	}
	fieldCount, err := pc.ReadI32()
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "schema field count", err)
	}
	if fieldCount < 0 || fieldCount > maxFieldCount {
		return nil, &model.DecodeError{Kind: model.ErrMalformedPayload, Component: "block", Offset: pc.Offset(), Detail: fmt.Sprintf("implausible field count %d", fieldCount)}
	}

	fields := make([]model.EventField, 0, fieldCount)
	for i := int32(0); i < fieldCount; i++ {
		typeCode, err := pc.ReadI32()
		if err != nil {
			return nil, wrap(model.ErrMalformedPayload, "schema field type code", err)
		}
		var elementTypeCode model.FieldTypeCode
		if model.FieldTypeCode(typeCode) == model.ArrayTypeCode {
			etc, err := pc.ReadI32()
			if err != nil {
				return nil, wrap(model.ErrMalformedPayload, "schema array element type code", err)
			}
			elementTypeCode = model.FieldTypeCode(etc)
		}
		fieldName, err := pc.ReadUTF16String()
		if err != nil {
			return nil, wrap(model.ErrMalformedPayload, "schema field name", err)
		}
		fields = append(fields, model.EventField{Name: fieldName, TypeCode: model.FieldTypeCode(typeCode), ElementTypeCode: elementTypeCode})
	}

	return &model.EventSchema{
		MetadataID: metadataID,
		Provider:   provider,
		EventID:    eventID,
		EventName:  eventName,
		Keywords:   keywords,
		Version:    version,
		Level:      level,
		Fields:     fields,
	}, nil
}
