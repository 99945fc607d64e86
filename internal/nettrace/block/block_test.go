package block

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
	"github.com/austenc/nettrace/internal/nettrace/testtrace"
)

func TestDecodeStackBlock_ParsesEntriesAndAssignsSequentialIDs(t *testing.T) {
	content := testtrace.BuildStackBlockContent(10, [][]uint64{{0x1, 0x2}, {0x3}}, 8)
	records, errs := DecodeStackBlock(cursor.New(content), 8)

	require.Empty(t, errs)
	require.Len(t, records, 2)
	assert.Equal(t, uint64(10), records[0].StackID)
	assert.Equal(t, []uint64{0x1, 0x2}, records[0].Addresses)
	assert.Equal(t, uint64(11), records[1].StackID)
	assert.Equal(t, []uint64{0x3}, records[1].Addresses)
}

func TestDecodeStackBlock_RejectsBadPointerSize(t *testing.T) {
	content := testtrace.BuildStackBlockContent(1, [][]uint64{{0x1}}, 8)
	records, errs := DecodeStackBlock(cursor.New(content), 3)
	assert.Nil(t, records)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0], "neither 4 nor 8")
}

func TestDecodeMetadataBlock_SkipsMalformedDescriptorAndContinues(t *testing.T) {
	good := testtrace.EncodeSchemaDescriptor(1, "Prov", 10, "Good", 0, 1, 0, nil)
	goodEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: good})

	// A malformed descriptor: declares one field but its name bytes are
	// missing, so decoding it must fail without aborting the rest of the
	// block.
	bad := testtrace.EncodeSchemaDescriptor(2, "Prov", 11, "Bad", 0, 1, 0, []testtrace.FieldSpec{{Name: "f", TypeCode: 1}})
	bad = bad[:len(bad)-4] // truncate the field name's UTF-16 bytes away
	badEvent := testtrace.EncodeCompressedEvent(testtrace.EventSpec{ExplicitSize: true, Payload: bad})

	content := testtrace.BuildEventStreamContent(goodEvent, badEvent)
	schemas, errs := DecodeMetadataBlock(cursor.New(content))

	require.Len(t, schemas, 1)
	assert.Equal(t, uint32(1), schemas[0].MetadataID)
	assert.NotEmpty(t, errs)
}

func u32p(v uint32) *uint32 { return &v }

func TestDecodeEventBlock_StreamsCompressedEvents(t *testing.T) {
	ev := testtrace.EncodeCompressedEvent(testtrace.EventSpec{
		MetadataID:     u32p(5),
		ExplicitSize:   true,
		TimestampDelta: 7,
		Payload:        []byte{0xAA, 0xBB},
	})
	content := testtrace.BuildEventStreamContent(ev)

	var decoded []*model.DecodedEvent
	errs := DecodeEventBlock(cursor.New(content), func(e *model.DecodedEvent) error {
		decoded = append(decoded, e)
		return nil
	})

	require.Empty(t, errs)
	require.Len(t, decoded, 1)
	assert.Equal(t, uint32(5), decoded[0].MetadataID)
	assert.Equal(t, []byte{0xAA, 0xBB}, decoded[0].Payload)
}
