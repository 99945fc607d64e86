package block

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// ReadEvent decodes one event (real or metadata pseudo-event) using
// whichever of the two header encodings compressed selects, mutating
// carry in place for the compressed form (spec §4.4, §4.5). carry must be
// zeroed at block start and is never shared across blocks.
func ReadEvent(cur *cursor.Cursor, compressed bool, carry *model.CarryState) (*model.DecodedEvent, error) {
	if compressed {
		return readCompressedEvent(cur, carry)
	}
	return readUncompressedEvent(cur)
}

func readUncompressedEvent(cur *cursor.Cursor) (*model.DecodedEvent, error) {
	start := cur.Offset()

	eventSize, err := cur.ReadU32()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "event size", err)
	}
	bodyStart := cur.Offset()

	rawMetadataID, err := cur.ReadU32()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "metadata id", err)
	}
	metadataID := rawMetadataID &^ 0x80000000

	if _, err := cur.ReadU32(); err != nil { // sequenceNumber, not separately retained on DecodedEvent
		return nil, wrap(model.ErrMalformedEvent, "sequence number", err)
	}
	if _, err := cur.ReadU64(); err != nil { // threadId (unused: captureThreadId is authoritative below)
		return nil, wrap(model.ErrMalformedEvent, "thread id", err)
	}
	captureThreadID, err := cur.ReadU64()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "capture thread id", err)
	}
	if _, err := cur.ReadU32(); err != nil { // processorNumber
		return nil, wrap(model.ErrMalformedEvent, "processor number", err)
	}
	stackID, err := cur.ReadU32()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "stack id", err)
	}
	timestamp, err := cur.ReadU64()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "timestamp", err)
	}
	if _, err := cur.ReadBytes(16); err != nil { // activityId
		return nil, wrap(model.ErrMalformedEvent, "activity id", err)
	}
	if _, err := cur.ReadBytes(16); err != nil { // relatedActivityId
		return nil, wrap(model.ErrMalformedEvent, "related activity id", err)
	}
	payloadSize, err := cur.ReadU32()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "payload size", err)
	}
	payload, err := cur.ReadBytes(int(payloadSize))
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "payload", err)
	}

	if consumed := cur.Offset() - bodyStart; consumed != int64(eventSize) {
		return nil, &model.DecodeError{Kind: model.ErrMalformedEvent, Component: "block", Offset: bodyStart, Detail: fmt.Sprintf("declared event size %d, consumed %d", eventSize, consumed)}
	}

	if rem := (cur.Offset() - start) % 4; rem != 0 {
		cur.Skip(int(4 - rem))
	}

	return &model.DecodedEvent{
		MetadataID:  metadataID,
		ThreadID:    int64(captureThreadID),
		StackID:     uint64(stackID),
		Timestamp:   timestamp,
		PayloadSize: payloadSize,
		Payload:     payload,
	}, nil
}

// readCompressedEvent implements the flag-bit table in spec §4.5.
func readCompressedEvent(cur *cursor.Cursor, carry *model.CarryState) (*model.DecodedEvent, error) {
	flags, err := cur.ReadU8()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "flags", err)
	}

	if flags&0x01 != 0 {
		v, err := cur.ReadULEB128()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "metadata id", err)
		}
		carry.MetadataID = v
	}

	if flags&0x02 != 0 {
		delta, err := cur.ReadULEB128_64()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "sequence delta", err)
		}
		carry.SequenceNumber += uint32(delta) + 1

		capTid, err := cur.ReadSLEB128()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "capture thread id", err)
		}
		carry.CaptureThreadID = capTid

		proc, err := cur.ReadULEB128()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "processor number", err)
		}
		carry.ProcessorNumber = proc
	}

	if flags&0x04 != 0 {
		tid, err := cur.ReadSLEB128()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "thread id", err)
		}
		carry.ThreadID = tid
	}

	if flags&0x08 != 0 {
		sid, err := cur.ReadULEB128_64()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "stack id", err)
		}
		carry.StackID = sid
	}

	if flags&0x10 != 0 {
		cur.Skip(16) // activityId, not retained
	}
	if flags&0x20 != 0 {
		cur.Skip(16) // relatedActivityId, not retained
	}
	// 0x40: "sorted" marker, carries no data either way.

	if flags&0x80 != 0 {
		ps, err := cur.ReadULEB128()
		if err != nil {
			return nil, wrap(model.ErrMalformedEvent, "payload size", err)
		}
		carry.PayloadSize = ps
	}

	tsDelta, err := cur.ReadULEB128_64()
	if err != nil {
		return nil, wrap(model.ErrMalformedEvent, "timestamp delta", err)
	}
	carry.Timestamp += tsDelta

	if flags&0x02 == 0 && carry.MetadataID != 0 {
		carry.SequenceNumber++
	}

	payload, err := cur.ReadBytes(int(carry.PayloadSize))
	if err != nil {
		return nil, wrap(model.ErrMalformedPayload, "payload", err)
	}

	return &model.DecodedEvent{
		MetadataID:  carry.MetadataID,
		ThreadID:    carry.ThreadID,
		StackID:     carry.StackID,
		Timestamp:   carry.Timestamp,
		PayloadSize: carry.PayloadSize,
		Payload:     payload,
	}, nil
}
