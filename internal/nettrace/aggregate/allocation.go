// Package aggregate maintains the allocation tables (spec §4.8) and the
// address-to-method resolver (spec §4.9). Grounded on the teacher's
// BaseRegistry pattern (internal/heap/registry/stack.go,strings.go) for
// the map+accumulate shape, generalized from a single count to the
// count/size pair this trace's records need.
package aggregate

import "github.com/austenc/nettrace/internal/nettrace/model"

// AddAllocation folds one GC-allocation-tick observation into every table
// spec §4.8 names. retainEvent mirrors AllocationInfo's optional
// per-event detail list.
func AddAllocation(res *model.ParseResult, typeName string, size, timestamp, stackID uint64, retainEvent bool) {
	info := res.Allocations[typeName]
	if info == nil {
		info = &model.AllocationInfo{TypeName: typeName}
		res.Allocations[typeName] = info
	}
	info.Count++
	info.TotalSize += size

	if retainEvent {
		info.Events = append(info.Events, model.AllocationEvent{
			TypeName:  typeName,
			Size:      size,
			Timestamp: timestamp,
			StackHex:  stackHex(res, stackID),
		})
	}

	if stackID == 0 {
		return
	}

	samples := res.AllocationSamples[stackID]
	if samples == nil {
		samples = &model.AllocationSamples{StackID: stackID, ByType: make(map[string]*model.TypeSizeCount)}
		res.AllocationSamples[stackID] = samples
	}
	samples.Count++
	samples.TotalSize += size
	tsc := samples.ByType[typeName]
	if tsc == nil {
		tsc = &model.TypeSizeCount{}
		samples.ByType[typeName] = tsc
	}
	tsc.Count++
	tsc.Size += size

	byStack := res.TypeStacks[typeName]
	if byStack == nil {
		byStack = make(map[uint64]*model.TypeStackDistribution)
		res.TypeStacks[typeName] = byStack
	}
	dist := byStack[stackID]
	if dist == nil {
		dist = &model.TypeStackDistribution{}
		byStack[stackID] = dist
	}
	dist.Count++
	dist.Size += size
}

func stackHex(res *model.ParseResult, stackID uint64) []string {
	if stackID == 0 {
		return nil
	}
	stack := res.Stacks[stackID]
	if stack == nil {
		return nil
	}
	hex := make([]string, len(stack.Addresses))
	for i, addr := range stack.Addresses {
		hex[i] = formatHex(addr)
	}
	return hex
}
