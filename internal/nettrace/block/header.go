// Package block decodes EventPipe block payloads: the common block
// prologue, the metadata and event pseudo/real-event streams (which share
// one header encoding pair), and the stack address-array stream (spec
// §4.3-§4.5, §4.7). It generalizes the teacher's block-header reader
// (internal/heap/parser/header.go) from HPROF's single fixed record header
// to EventPipe's variable-length, optionally-timestamped prologue.
package block

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// Header is the common block prologue (spec §4.3).
type Header struct {
	Flags         int16
	MinTimestamp  int64
	MaxTimestamp  int64
	HasTimestamps bool
}

// Compressed reports whether bit 0 of the flag word selects the
// flag-driven-varint per-event encoding.
func (h *Header) Compressed() bool { return h.Flags&0x01 != 0 }

// ReadHeader parses the block prologue and leaves the cursor positioned at
// the start of the event stream, regardless of how many header bytes this
// reader understood — any bytes between what was consumed and the
// declared header size are skipped for forward compatibility.
func ReadHeader(cur *cursor.Cursor, kind model.BlockKind) (*Header, error) {
	headerSize, err := cur.ReadI16()
	if err != nil {
		return nil, wrap(model.ErrMalformedBlock, "header size", err)
	}
	flags, err := cur.ReadI16()
	if err != nil {
		return nil, wrap(model.ErrMalformedBlock, "header flags", err)
	}

	h := &Header{Flags: flags}
	consumed := 4

	if kind == model.BlockEvent && int(headerSize) >= 20 {
		h.MinTimestamp, err = cur.ReadI64()
		if err != nil {
			return nil, wrap(model.ErrMalformedBlock, "min timestamp", err)
		}
		h.MaxTimestamp, err = cur.ReadI64()
		if err != nil {
			return nil, wrap(model.ErrMalformedBlock, "max timestamp", err)
		}
		h.HasTimestamps = true
		consumed = 20
	}

	if rem := int(headerSize) - consumed; rem > 0 {
		cur.Skip(rem)
	}
	return h, nil
}

func wrap(kind model.ErrorKind, detail string, cause error) error {
	return &model.DecodeError{Kind: kind, Component: "block", Offset: 0, Detail: fmt.Sprintf("%s: %v", detail, cause)}
}
