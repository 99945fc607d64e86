// Package export converts a decoded ParseResult into a google/pprof
// profile.Profile (SPEC_FULL §4.11) — a supplement the distilled spec
// does not require but that every component it specifies (stacks,
// methods, CPU samples) already carries enough information to produce,
// giving callers an interchange format instead of only this package's own
// FlameNode tree.
package export

import (
	"fmt"

	"github.com/google/pprof/profile"

	"github.com/austenc/nettrace/internal/nettrace/aggregate"
	"github.com/austenc/nettrace/internal/nettrace/model"
)

// AllocSampleType is the sampleType value that selects the two-value
// allocation profile (allocation count, byte size) instead of the
// default single-value CPU sample count (SPEC_FULL §4.11).
const AllocSampleType = "alloc-objects"

// locationTable memoizes one profile.Function/profile.Location pair per
// distinct resolved frame name, shared by both the CPU and allocation
// export paths so a method appearing in both never gets two ids.
type locationTable struct {
	p      *profile.Profile
	byName map[string]*profile.Location
	nextID uint64
}

func newLocationTable(p *profile.Profile) *locationTable {
	return &locationTable{p: p, byName: make(map[string]*profile.Location), nextID: 1}
}

func (t *locationTable) locationFor(name string) *profile.Location {
	if loc, ok := t.byName[name]; ok {
		return loc
	}
	fn := &profile.Function{ID: t.nextID, Name: name, SystemName: name}
	t.nextID++
	t.p.Function = append(t.p.Function, fn)

	loc := &profile.Location{ID: t.nextID, Line: []profile.Line{{Function: fn}}}
	t.nextID++
	t.p.Location = append(t.p.Location, loc)

	t.byName[name] = loc
	return loc
}

func (t *locationTable) locationsFor(addrs []uint64, resolver *aggregate.Resolver) []*profile.Location {
	locs := make([]*profile.Location, len(addrs))
	for i, addr := range addrs {
		locs[i] = t.locationFor(resolver.ResolveName(addr))
	}
	return locs
}

// ToPprof builds a pprof profile from res. For the default sampleType it
// is a single-value CPU profile built from res.CPUSamplesByStack. When
// sampleType is AllocSampleType it is instead a two-value allocation
// profile — each sample's first value is the stack's allocation count,
// the second its total allocated bytes — built from
// res.AllocationSamples, matching the shape `go tool pprof` expects of a
// heap profile's alloc_objects/alloc_space sample types.
func ToPprof(res *model.ParseResult, sampleType, sampleUnit string) (*profile.Profile, error) {
	if sampleType == AllocSampleType {
		return allocPprof(res, sampleUnit)
	}
	return cpuPprof(res, sampleType, sampleUnit)
}

func cpuPprof(res *model.ParseResult, sampleType, sampleUnit string) (*profile.Profile, error) {
	resolver := aggregate.NewResolver(res)

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: sampleType, Unit: sampleUnit}},
	}
	locs := newLocationTable(p)

	for stackID, count := range res.CPUSamplesByStack {
		stack := res.Stacks[stackID]
		if stack == nil || count == 0 {
			continue
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: locs.locationsFor(stack.Addresses, resolver),
			Value:    []int64{int64(count)},
		})
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("nettrace: export to pprof: %w", err)
	}
	return p, nil
}

func allocPprof(res *model.ParseResult, countUnit string) (*profile.Profile, error) {
	resolver := aggregate.NewResolver(res)

	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "alloc_objects", Unit: countUnit},
			{Type: "alloc_space", Unit: "bytes"},
		},
	}
	locs := newLocationTable(p)

	for stackID, samples := range res.AllocationSamples {
		stack := res.Stacks[stackID]
		if stack == nil || samples.Count == 0 {
			continue
		}
		p.Sample = append(p.Sample, &profile.Sample{
			Location: locs.locationsFor(stack.Addresses, resolver),
			Value:    []int64{int64(samples.Count), int64(samples.TotalSize)},
		})
	}

	if err := p.CheckValid(); err != nil {
		return nil, fmt.Errorf("nettrace: export to pprof: %w", err)
	}
	return p, nil
}
