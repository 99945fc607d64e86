package profile

import (
	"github.com/austenc/nettrace/internal/nettrace/aggregate"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// Build runs the full post-pass described in spec §4.10: it resolves
// every sampled stack's addresses to method names, computes inclusive and
// exclusive CPU counts per method, and constructs both flame-graph
// variants. It must run after every event block has been decoded, since
// it depends on the complete method table.
func Build(res *model.ParseResult) {
	resolver := aggregate.NewResolver(res)

	buildMethodProfiles(res, resolver)
	res.CPUFlame = buildFlame(cpuStacks(res, resolver))
	res.AllocFlame = buildFlame(allocStacks(res, resolver))
}

func nsPerSample(res *model.ParseResult) uint64 {
	if res.Trace == nil || res.Trace.SamplingRateHz == 0 {
		return 0
	}
	return 1_000_000_000 / uint64(res.Trace.SamplingRateHz)
}

// buildMethodProfiles implements the exclusive/inclusive credit rule:
// only the top-of-stack frame is exclusive, but every distinct method
// anywhere on the stack is credited once inclusively (spec §4.10).
func buildMethodProfiles(res *model.ParseResult, resolver *aggregate.Resolver) {
	interval := nsPerSample(res)

	for stackID, count := range res.CPUSamplesByStack {
		stack := res.Stacks[stackID]
		if stack == nil || len(stack.Addresses) == 0 {
			continue
		}

		names := make([]string, len(stack.Addresses))
		for i, addr := range stack.Addresses {
			names[i] = resolver.ResolveName(addr)
		}

		top := profileFor(res, names[0])
		top.ExclusiveCount += count
		top.ExclusiveEstimateNs += count * interval

		seen := make(map[string]bool, len(names))
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			mp := profileFor(res, name)
			mp.InclusiveCount += count
			mp.InclusiveEstimateNs += count * interval
		}
	}
}

func profileFor(res *model.ParseResult, name string) *model.MethodProfile {
	mp := res.MethodProfiles[name]
	if mp == nil {
		mp = &model.MethodProfile{MethodName: name}
		res.MethodProfiles[name] = mp
	}
	return mp
}

// cpuStacks turns every sampled stack into a flame path, deepest caller
// first, weighted by its actual sample count (the higher-fidelity
// alternative spec §9 permits over one-weight-per-distinct-stack).
func cpuStacks(res *model.ParseResult, resolver *aggregate.Resolver) []flameStack {
	out := make([]flameStack, 0, len(res.CPUSamplesByStack))
	for stackID, count := range res.CPUSamplesByStack {
		stack := res.Stacks[stackID]
		if stack == nil || len(stack.Addresses) == 0 || count == 0 {
			continue
		}
		out = append(out, flameStack{path: reversedNames(stack, resolver), weight: count})
	}
	return out
}

func allocStacks(res *model.ParseResult, resolver *aggregate.Resolver) []flameStack {
	out := make([]flameStack, 0, len(res.AllocationSamples))
	for stackID, samples := range res.AllocationSamples {
		stack := res.Stacks[stackID]
		if stack == nil || len(stack.Addresses) == 0 || samples.Count == 0 {
			continue
		}
		out = append(out, flameStack{
			path:      reversedNames(stack, resolver),
			weight:    samples.Count,
			totalSize: samples.TotalSize,
			byType:    samples.ByType,
		})
	}
	return out
}

// reversedNames resolves every address in a stack and reverses the
// order, so the deepest caller (last address) becomes the tree root and
// the top-of-stack frame becomes the leaf (spec §4.10).
func reversedNames(stack *model.StackRecord, resolver *aggregate.Resolver) []string {
	names := make([]string, len(stack.Addresses))
	for i, addr := range stack.Addresses {
		names[len(names)-1-i] = resolver.ResolveName(addr)
	}
	return names
}
