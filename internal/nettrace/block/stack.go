package block

import (
	"fmt"

	"github.com/austenc/nettrace/internal/nettrace/cursor"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// DecodeStackBlock decodes the contiguous run of fixed-pointer-size
// address arrays in a StackBlock payload (spec §4.7). Stack ids increase
// by one from the declared firstId; a zero-size entry terminates the
// block early, which is not itself an error.
func DecodeStackBlock(cur *cursor.Cursor, pointerSize uint32) ([]*model.StackRecord, []string) {
	if _, err := ReadHeader(cur, model.BlockStack); err != nil {
		return nil, []string{err.Error()}
	}

	if pointerSize != 4 && pointerSize != 8 {
		return nil, []string{fmt.Sprintf("stack block: pointer size %d is neither 4 nor 8; block marked malformed", pointerSize)}
	}

	firstID, err := cur.ReadU32()
	if err != nil {
		return nil, []string{wrap(model.ErrMalformedBlock, "stack block first id", err).Error()}
	}
	count, err := cur.ReadU32()
	if err != nil {
		return nil, []string{wrap(model.ErrMalformedBlock, "stack block count", err).Error()}
	}

	var records []*model.StackRecord
	var errs []string
	stackID := uint64(firstID)

	for i := uint32(0); i < count; i++ {
		size, err := cur.ReadU32()
		if err != nil {
			errs = append(errs, wrap(model.ErrMalformedBlock, "stack entry size", err).Error())
			break
		}
		if size == 0 {
			break
		}
		raw, err := cur.ReadBytes(int(size))
		if err != nil {
			errs = append(errs, wrap(model.ErrMalformedBlock, "stack entry bytes", err).Error())
			break
		}
		if size%pointerSize != 0 {
			errs = append(errs, fmt.Sprintf("stack id %d: size %d not a multiple of pointer size %d, entry skipped", stackID, size, pointerSize))
			stackID++
			continue
		}

		addrs, err := readAddresses(raw, pointerSize)
		if err != nil {
			errs = append(errs, fmt.Sprintf("stack id %d: %v", stackID, err))
			stackID++
			continue
		}

		records = append(records, &model.StackRecord{StackID: stackID, Addresses: addrs})
		stackID++
	}

	return records, errs
}

func readAddresses(raw []byte, pointerSize uint32) ([]uint64, error) {
	rc := cursor.New(raw)
	n := len(raw) / int(pointerSize)
	addrs := make([]uint64, n)
	for i := 0; i < n; i++ {
		if pointerSize == 8 {
			v, err := rc.ReadU64()
			if err != nil {
				return nil, err
			}
			addrs[i] = v
		} else {
			v, err := rc.ReadU32()
			if err != nil {
				return nil, err
			}
			addrs[i] = uint64(v)
		}
	}
	return addrs, nil
}
