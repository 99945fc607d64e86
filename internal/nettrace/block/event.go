package block

import (
	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// DecodeEventBlock streams every event in an EventBlock payload to onEvent
// (spec §4.5). Events are not buffered into a slice: a trace can carry
// millions of them, and the dispatcher only needs one at a time. A
// malformed header aborts the remainder of the block; an error returned
// by onEvent is recorded but does not stop the stream, since the cursor
// position past a successfully-decoded header is always trustworthy.
func DecodeEventBlock(cur *cursor.Cursor, onEvent func(*model.DecodedEvent) error) []string {
	header, err := ReadHeader(cur, model.BlockEvent)
	if err != nil {
		return []string{err.Error()}
	}

	var errs []string
	carry := &model.CarryState{}

	for cur.Len() > 0 {
		ev, err := ReadEvent(cur, header.Compressed(), carry)
		if err != nil {
			errs = append(errs, err.Error())
			break
		}
		if err := onEvent(ev); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}
